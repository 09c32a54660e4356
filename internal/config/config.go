package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Database struct {
		Path string
	}
	Registry struct {
		// Backend is "sqlite" or "s3".
		Backend string
	}
	Session struct {
		// Backend is "memory" or "sqlite".
		Backend       string
		IdleTimeout   time.Duration
		SweepInterval time.Duration
	}
	Auth struct {
		TabSecret       string
		TabTTL          time.Duration
		SubmitDelay     time.Duration
		PasswordStorage string
	}
	Poll struct {
		Interval   time.Duration
		Categories []string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// optional; real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUTHDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "data/authdesk.db")
	v.SetDefault("registry.backend", "sqlite")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.idletimeout", "2h")
	v.SetDefault("session.sweepinterval", "1m")
	v.SetDefault("auth.tabsecret", "")
	v.SetDefault("auth.tabttl", "12h")
	v.SetDefault("auth.submitdelay", "1s")
	v.SetDefault("auth.passwordstorage", "plain")
	v.SetDefault("poll.interval", "700ms")
	v.SetDefault("poll.categories", []string{"javascript", "rust", "python"})
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "authdesk")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.TabSecret) == "" {
		return fmt.Errorf("auth tab secret is required")
	}
	switch c.Registry.Backend {
	case "sqlite":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 registry")
		}
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	switch c.Session.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Auth.PasswordStorage {
	case "plain", "bcrypt":
	default:
		return fmt.Errorf("unknown password storage %q", c.Auth.PasswordStorage)
	}
	return nil
}

// NeedsDatabase reports whether any backend is stored in sqlite.
func (c Config) NeedsDatabase() bool {
	return c.Registry.Backend == "sqlite" || c.Session.Backend == "sqlite"
}
