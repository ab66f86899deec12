package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)

	entries, err := fs.ReadDir(src, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationsCreateModelTables(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)

	var schema strings.Builder
	err = fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		body, err := fs.ReadFile(src, path)
		schema.Write(body)
		return err
	})
	require.NoError(t, err)

	for _, table := range []string{
		"billing_services",
		"billing_subscriptions",
		"billing_subscription_allocations",
		"billing_subscription_suballocations",
		"billing_subscription_prices",
		"billing_subscription_price_items",
		"billing_subscription_price_modifiers",
		"billing_subscription_price_modifier_items",
		"billing_subscription_operations",
		"billing_payment_history",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
