package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/allotment/internal/config"
)

// Config controls which jobs run and when.
type Config struct {
	Enabled     bool
	RenewalSpec string
	CatalogSpec string
	LockTTL     time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RenewalSpec: "0 5 1 * *",
		CatalogSpec: "@every 5m",
		LockTTL:     30 * time.Minute,
		JobTimeout:  25 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Schedule.Enabled,
		RenewalSpec: cfg.Schedule.RenewalSpec,
		CatalogSpec: cfg.Schedule.CatalogSpec,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.RenewalSpec) == "" {
		c.RenewalSpec = defaults.RenewalSpec
	}
	if strings.TrimSpace(c.CatalogSpec) == "" {
		c.CatalogSpec = defaults.CatalogSpec
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lock must outlive the job holding it.
	if c.JobTimeout >= c.LockTTL {
		c.JobTimeout = c.LockTTL - time.Second
	}
	return c
}
