// Package config implements the gateway's layered configuration: compiled
// defaults, an optional config/default.toml, an optional
// config/local.toml overlay, then environment variables prefixed
// ARC_AUTH__ with __ as the nested-key separator (e.g.
// ARC_AUTH__SERVER__GATEWAY_PORT). Environment overrides reach only keys
// that have a compiled default or a value in one of the TOML files;
// entries of routing.routes cannot be set or overridden by index from the
// environment. The JWT signing secret is
// deliberately absent from this layer; it lives only in the database's
// JwtConfig singleton row, per its rotation model.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Route is a statically configured proxy route, highest priority in the
// effective route list ahead of dynamic (store-backed) routes.
type Route struct {
	Path     string `mapstructure:"path"`
	Upstream string `mapstructure:"upstream"`
	Auth     bool   `mapstructure:"auth"`
}

// Config is the fully resolved, process-wide configuration.
type Config struct {
	Server struct {
		GatewayPort int `mapstructure:"gateway_port"`
		APIPort     int `mapstructure:"api_port"`
		AdminPort   int `mapstructure:"admin_port"`
	} `mapstructure:"server"`

	Database struct {
		URL            string `mapstructure:"url"`
		MaxConnections int    `mapstructure:"max_connections"`
	} `mapstructure:"database"`

	JWT struct {
		AccessTokenTTLSeconds       int `mapstructure:"access_token_ttl"`
		RefreshTokenTTLSeconds      int `mapstructure:"refresh_token_ttl"`
		AutoRefreshThresholdSeconds int `mapstructure:"auto_refresh_threshold"`
	} `mapstructure:"jwt"`

	Routing struct {
		Routes []Route `mapstructure:"routes"`
	} `mapstructure:"routing"`

	Captcha struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"captcha"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// Load builds a Config from compiled defaults, config/default.toml,
// config/local.toml (both optional), and ARC_AUTH__-prefixed environment
// overrides, in that precedence order (later sources win).
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("default")
	v.SetConfigType("toml")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config/default.toml: %w", err)
		}
	}

	local := viper.New()
	local.SetConfigName("local")
	local.SetConfigType("toml")
	local.AddConfigPath("config")
	if err := local.ReadInConfig(); err == nil {
		if err := v.MergeConfigMap(local.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging config/local.toml: %w", err)
		}
	}

	// viper joins prefix and key with "_", so the trailing "_" here yields
	// the ARC_AUTH__ prefix.
	v.SetEnvPrefix("ARC_AUTH_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.gateway_port", 8080)
	v.SetDefault("server.api_port", 8081)
	v.SetDefault("server.admin_port", 8082)

	v.SetDefault("database.max_connections", 10)

	v.SetDefault("jwt.access_token_ttl", 900)
	v.SetDefault("jwt.refresh_token_ttl", 7*24*3600)
	v.SetDefault("jwt.auto_refresh_threshold", 120)

	v.SetDefault("captcha.enabled", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
