// Package config loads the controlnet settings from defaults, an optional
// TOML file, the environment and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cloudchase/controlnet-deploy/registry"
)

// EnvPrefix prefixes every environment override, e.g. CONTROLNET_SERVER_ADDR.
const EnvPrefix = "CONTROLNET"

// Config is the resolved configuration.
type Config struct {
	Demo    string        `mapstructure:"demo"`
	Root    string        `mapstructure:"root"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the serve-time settings of the host server.
type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	BasePath         string        `mapstructure:"base_path"`
	ConcurrencyLimit int           `mapstructure:"concurrency_limit"`
	KeepWarm         int           `mapstructure:"keep_warm"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	// RequireProvisioned makes serve fail instead of warn when the
	// provisioning record is missing or names another demo.
	RequireProvisioned bool `mapstructure:"require_provisioned"`
}

// BackendConfig points at the inference worker.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"demo":                "demo",
	"root":                "root",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"addr":                "server.addr",
	"base-path":           "server.base_path",
	"concurrency-limit":   "server.concurrency_limit",
	"keep-warm":           "server.keep_warm",
	"shutdown-timeout":    "server.shutdown_timeout",
	"require-provisioned": "server.require_provisioned",
	"backend-url":         "backend.url",
	"backend-timeout":     "backend.timeout",
}

// New returns a viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The image build passes the demo as a bare DEMO_NAME.
	_ = v.BindEnv("demo", "DEMO_NAME", EnvPrefix+"_DEMO_NAME")

	v.SetConfigName("controlnet")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("demo", registry.DefaultDemo)
	v.SetDefault("root", "/root")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.base_path", "/")
	v.SetDefault("server.concurrency_limit", 1)
	v.SetDefault("server.keep_warm", 1)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.require_provisioned", false)
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.timeout", 10*time.Minute)
}

// BindFlags binds every known flag present in fs to its config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Load reads the optional config file and returns the validated config.
// An explicit path must exist; the default controlnet.toml may be absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings no command can run with.
func (c *Config) Validate() error {
	if _, err := registry.Default().Lookup(c.Demo); err != nil {
		return fmt.Errorf("demo: %w", err)
	}
	if c.Root == "" {
		return errors.New("root must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Server.ConcurrencyLimit < 0 {
		return fmt.Errorf("server.concurrency_limit must be non-negative, got %d", c.Server.ConcurrencyLimit)
	}
	if c.Server.KeepWarm < 0 {
		return fmt.Errorf("server.keep_warm must be non-negative, got %d", c.Server.KeepWarm)
	}
	return nil
}
