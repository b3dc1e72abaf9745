// Package config loads the stockdoc client configuration from an optional
// YAML file and STOCKDOC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/spf13/viper"

	"dentalstock/internal/domain/catalogs/item"
)

// EnvPrefix prefixes every environment variable, e.g. STOCKDOC_API_BASE_URL.
const EnvPrefix = "STOCKDOC"

// Config is the client configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Composer ComposerConfig `mapstructure:"composer"`
}

// APIConfig locates the inventory service.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CacheConfig configures the item list cache.
type CacheConfig struct {
	ItemTTL time.Duration `mapstructure:"item_ttl"`
}

// ComposerConfig holds composer defaults.
type ComposerConfig struct {
	// WarehouseType is the warehouse the export selector lists items from.
	WarehouseType string `mapstructure:"warehouse_type"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Composer.WarehouseType = strings.ToUpper(strings.TrimSpace(cfg.Composer.WarehouseType))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("cache.item_ttl", 5*time.Minute)
	v.SetDefault("composer.warehouse_type", string(item.WarehouseNormal))
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.API),
		validation.Field(&c.Log),
		validation.Field(&c.Composer),
	)
}

func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
	)
}

func (c ComposerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.WarehouseType, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if !item.WarehouseType(s).IsValid() {
				return errors.New("must be COLD or NORMAL")
			}
			return nil
		})),
	)
}
