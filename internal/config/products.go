package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ProductEntry is one row of the periodization reference file: how a product
// is categorized and over how many months its invoiced amount is spread.
type ProductEntry struct {
	ProductName  string `mapstructure:"productName"`
	Category     string `mapstructure:"category"`
	PeriodMonths int    `mapstructure:"periodMonths"`
	Recurring    bool   `mapstructure:"recurring"`
}

type ProductsConfig struct {
	Products []ProductEntry `mapstructure:"products"`
}

type ProductsConfigHolder struct {
	current atomic.Value // holds ProductsConfig
}

// NewProductsConfigHolder loads products.yml and keeps it hot-reloaded.
// A missing file is not an error: periodization then relies entirely on
// description parsing and name-derived markers.
func NewProductsConfigHolder() (*ProductsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("products")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revrec/config")
	v.AddConfigPath("/etc/revrec")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &ProductsConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(ProductsConfig{})
		return holder, nil
	}

	var cfg ProductsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validateProductsConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ProductsConfig
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[products-config] reload failed: %v", err)
			return
		}
		if err := validateProductsConfig(updated); err != nil {
			log.Printf("[products-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[products-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticProductsConfigHolder wraps a fixed config, used in tests.
func NewStaticProductsConfigHolder(cfg ProductsConfig) *ProductsConfigHolder {
	holder := &ProductsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ProductsConfigHolder) Get() ProductsConfig {
	return h.current.Load().(ProductsConfig)
}

func validateProductsConfig(cfg ProductsConfig) error {
	for _, p := range cfg.Products {
		if strings.TrimSpace(p.ProductName) == "" {
			return errors.New("products: productName cannot be empty")
		}
		if p.PeriodMonths < 1 {
			return errors.New("products: periodMonths must be >= 1")
		}
	}
	return nil
}
