// Package config loads hearth's settings from defaults, an optional YAML or
// TOML file, HEARTH_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server" toml:"server"`
	Static  StaticConfig  `mapstructure:"static" yaml:"static" toml:"static"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" toml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" toml:"metrics"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth" toml:"auth"`
	CORS    CORSConfig    `mapstructure:"cors" yaml:"cors" toml:"cors"`

	CrossOrigin CrossOriginConfig `mapstructure:"cross_origin" yaml:"cross_origin" toml:"cross_origin"`
}

type ServerConfig struct {
	Address          string        `mapstructure:"address" yaml:"address" toml:"address"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout" toml:"keep_alive_timeout"`
	MaxConnections   int           `mapstructure:"max_connections" yaml:"max_connections" toml:"max_connections"`
	MaxBodySize      int64         `mapstructure:"max_body_size" yaml:"max_body_size" toml:"max_body_size"`
}

type StaticConfig struct {
	Root       string `mapstructure:"root" yaml:"root" toml:"root"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
	Index      string `mapstructure:"index" yaml:"index" toml:"index"`
}

type LogConfig struct {
	// Access enables the per request log on stdout.
	Access bool   `mapstructure:"access" yaml:"access" toml:"access"`
	Color  bool   `mapstructure:"color" yaml:"color" toml:"color"`
	Level  string `mapstructure:"level" yaml:"level" toml:"level"`
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" toml:"path"`
}

// AuthConfig enables basic authentication when Users is not empty.
type AuthConfig struct {
	Realm string            `mapstructure:"realm" yaml:"realm" toml:"realm"`
	Users map[string]string `mapstructure:"users" yaml:"users,omitempty" toml:"users,omitempty"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	MaxAge         int      `mapstructure:"max_age" yaml:"max_age" toml:"max_age"`
}

// CrossOriginConfig rejects state changing requests from other origins.
type CrossOriginConfig struct {
	Protect        bool     `mapstructure:"protect" yaml:"protect" toml:"protect"`
	TrustedOrigins []string `mapstructure:"trusted_origins" yaml:"trusted_origins" toml:"trusted_origins"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          ":42069",
			ReadTimeout:      30 * time.Second,
			KeepAliveTimeout: 5 * time.Second,
			MaxConnections:   1024,
			MaxBodySize:      1 << 20,
		},
		Static: StaticConfig{
			Root:       ".",
			BufferSize: 512 * 1024,
			Index:      "index.html",
		},
		Log: LogConfig{
			Access: true,
			Color:  true,
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Auth: AuthConfig{
			Realm: "hearth",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "HEAD"},
		},
		CrossOrigin: CrossOriginConfig{
			Protect: true,
		},
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"address":         "server.address",
	"root":            "static.root",
	"buffer-size":     "static.buffer_size",
	"keep-alive":      "server.keep_alive_timeout",
	"read-timeout":    "server.read_timeout",
	"max-connections": "server.max_connections",
	"no-color":        "log.color",
	"log-level":       "log.level",
	"metrics":         "metrics.enabled",
}

// Load reads the configuration. path may be empty, in which case hearth.yaml
// or hearth.toml in the working directory is used if present. flags may be
// nil; flags that were not set on the command line do not override.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("HEARTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hearth")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.keep_alive_timeout", d.Server.KeepAliveTimeout)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("static.root", d.Static.Root)
	v.SetDefault("static.buffer_size", d.Static.BufferSize)
	v.SetDefault("static.index", d.Static.Index)
	v.SetDefault("log.access", d.Log.Access)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("auth.realm", d.Auth.Realm)
	v.SetDefault("cors.enabled", d.CORS.Enabled)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", d.CORS.AllowedMethods)
	v.SetDefault("cors.max_age", d.CORS.MaxAge)
	v.SetDefault("cross_origin.protect", d.CrossOrigin.Protect)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if name == "no-color" {
			// inverted: only an explicit --no-color turns colors off
			if f.Changed {
				v.Set(key, f.Value.String() != "true")
			}
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the values Load cannot check by type alone.
func (c *Config) Validate() error {
	switch {
	case c.Server.Address == "":
		return &ValidationError{Field: "server.address", Message: "must not be empty"}
	case c.Server.ReadTimeout < 0:
		return &ValidationError{Field: "server.read_timeout", Message: "must not be negative"}
	case c.Server.KeepAliveTimeout < 0:
		return &ValidationError{Field: "server.keep_alive_timeout", Message: "must not be negative"}
	case c.Server.MaxConnections < 0:
		return &ValidationError{Field: "server.max_connections", Message: "must not be negative"}
	case c.Server.MaxBodySize < 0:
		return &ValidationError{Field: "server.max_body_size", Message: "must not be negative"}
	case c.Static.Root == "":
		return &ValidationError{Field: "static.root", Message: "must not be empty"}
	case c.Static.BufferSize <= 0:
		return &ValidationError{Field: "static.buffer_size", Message: "must be positive"}
	case strings.ContainsAny(c.Static.Index, `/\`):
		return &ValidationError{Field: "static.index", Message: "must be a file name"}
	case !slices.Contains(logLevels, c.Log.Level):
		return &ValidationError{Field: "log.level", Message: "must be one of " + strings.Join(logLevels, ", ")}
	case c.Log.Format != "text" && c.Log.Format != "json":
		return &ValidationError{Field: "log.format", Message: "must be text or json"}
	case c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/"):
		return &ValidationError{Field: "metrics.path", Message: "must start with /"}
	case c.CORS.MaxAge < 0:
		return &ValidationError{Field: "cors.max_age", Message: "must not be negative"}
	}
	for user := range c.Auth.Users {
		if user == "" || strings.Contains(user, ":") {
			return &ValidationError{Field: "auth.users", Message: fmt.Sprintf("invalid user name %q", user)}
		}
	}
	return nil
}

// Encode writes c in format, "yaml" or "toml". Passwords are masked.
func (c *Config) Encode(w io.Writer, format string) error {
	out := *c
	if len(c.Auth.Users) > 0 {
		out.Auth.Users = maps.Clone(c.Auth.Users)
		for user := range out.Auth.Users {
			out.Auth.Users[user] = "********"
		}
	}

	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&out); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(&out)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
