package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, time.January, 31, 9, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	c := NewFakeClock(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, start.Equal(c.Now()))

	assert.Equal(t, start.Add(time.Hour).UTC(), c.Advance(time.Hour))
	assert.Equal(t, time.March, c.AdvanceMonths(1).Month(), "Jan 31 + 1 month normalizes into March")

	c.Set(start)
	assert.True(t, start.Equal(c.Now()))
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, New().Now().Location())
}
