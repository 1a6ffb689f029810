// Package config loads the ipscope configuration and exposes it to modules
// through plugin.Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/ipscope/pkg/plugin"
)

// EnvPrefix prefixes environment overrides, e.g. IPSCOPE_SERVER_PORT or
// IPSCOPE_PLUGINS_RECON_PROBE_METHOD.
const EnvPrefix = "IPSCOPE"

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig is a plugin.Config view over a viper instance. Sub views keep
// a key prefix instead of copying the tree, so environment overrides still
// apply below the sub-tree.
type ViperConfig struct {
	v      *viper.Viper
	prefix string
}

// New wraps v. A nil v behaves as an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) key(k string) string { return c.prefix + k }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(c.key(key)) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(c.key(key)) }

func (c *ViperConfig) GetFloat64(key string) float64 { return c.v.GetFloat64(c.key(key)) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(c.key(key)) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(c.key(key)) }

func (c *ViperConfig) GetIntSlice(key string) []int { return c.v.GetIntSlice(c.key(key)) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(c.key(key)) }

// Sub returns the view rooted at key. It is never nil; missing sub-trees
// read as zero values.
func (c *ViperConfig) Sub(key string) plugin.Config {
	return &ViperConfig{v: c.v, prefix: c.key(key) + "."}
}

// Unmarshal decodes the view into target using mapstructure tags.
func (c *ViperConfig) Unmarshal(target any) error {
	if c.prefix == "" {
		return c.v.Unmarshal(target)
	}
	return c.v.UnmarshalKey(strings.TrimSuffix(c.prefix, "."), target)
}

// Viper returns the underlying instance.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }

// SetDefaults installs the server-level defaults. Module defaults live in
// each module.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	// Scans block until every host is probed; keep this above
	// plugins.recon max scan duration (260s with the recon defaults).
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.path", "ipscope.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("plugins.inventory.enabled", true)
	v.SetDefault("plugins.recon.enabled", true)
}

// Load reads configuration from defaults, the optional YAML file at path
// (or ./ipscope.yaml, /etc/ipscope/ipscope.yaml when path is empty) and
// IPSCOPE_* environment variables, in increasing precedence.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("ipscope")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ipscope")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
