package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, time.March, 1, 10, 30, 0, 123, time.FixedZone("WIB", 7*3600))
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: at})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.True(t, at.Equal(cursor.CreatedAt))
	assert.Equal(t, time.UTC, cursor.CreatedAt.Location())
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"not-base64!", "e30", ""} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestPage(t *testing.T) {
	at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(n int) Cursor {
		return Cursor{ID: "id", CreatedAt: at.Add(time.Duration(n) * time.Minute)}
	}

	rows, info, err := Page([]int{1, 2, 3}, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.True(t, cursorOf(2).CreatedAt.Equal(cursor.CreatedAt))

	rows, info, err = Page([]int{1, 2}, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rows)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
