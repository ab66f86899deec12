package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the hot-reloadable part of the configuration, read from
// billing.yml.
type BillingConfig struct {
	DefaultCurrency   string        `mapstructure:"defaultCurrency"`
	ServiceIgnoreList []string      `mapstructure:"serviceIgnoreList"`
	Issuer            InvoiceIssuer `mapstructure:"issuer"`
}

type InvoiceIssuer struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Email   string `mapstructure:"email"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultCurrency:   "USD",
		ServiceIgnoreList: []string{"BILLING_MANAGER", "PLATFORM_SUPPORT"},
		Issuer: InvoiceIssuer{
			Name: "Allotment Billing",
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/allotment")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ALLOTMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.serviceIgnoreList", defaults.ServiceIgnoreList)
	v.SetDefault("billing.issuer.name", defaults.Issuer.Name)

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		configFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !configFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	return h.current.Load().(BillingConfig)
}

// Ignored reports whether service is hidden from subscription details.
func (c BillingConfig) Ignored(service string) bool {
	for _, s := range c.ServiceIgnoreList {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(service)) {
			return true
		}
	}
	return false
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	return nil
}
