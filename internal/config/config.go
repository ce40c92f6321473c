package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"auth-service/internal/security"
)

const envPrefix = "AUTHSVC"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr                   string
		ShutdownTimeoutSeconds int
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
		BcryptCost      int
		Recovery        struct {
			Length         int
			Uppercase      bool
			Lowercase      bool
			Numbers        bool
			Symbols        bool
			ExcludeSimilar bool
		}
		// Admin is created at startup when absent. Both fields or neither.
		Admin struct {
			UserName string
			Password string
		}
	}
	Export struct {
		Bucket           string
		KeyPrefix        string
		Region           string
		Endpoint         string
		URLExpiryMinutes int
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.shutdowntimeoutseconds", 10)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/auth.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("auth.recovery.length", security.DefaultRecoveryPolicy.Length)
	v.SetDefault("auth.recovery.uppercase", security.DefaultRecoveryPolicy.Uppercase)
	v.SetDefault("auth.recovery.lowercase", security.DefaultRecoveryPolicy.Lowercase)
	v.SetDefault("auth.recovery.numbers", security.DefaultRecoveryPolicy.Numbers)
	v.SetDefault("auth.recovery.symbols", security.DefaultRecoveryPolicy.Symbols)
	v.SetDefault("auth.recovery.excludesimilar", security.DefaultRecoveryPolicy.ExcludeSimilar)
	v.SetDefault("auth.admin.username", "")
	v.SetDefault("auth.admin.password", "")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.keyprefix", "user-exports")
	v.SetDefault("export.region", "us-east-1")
	v.SetDefault("export.endpoint", "")
	v.SetDefault("export.urlexpiryminutes", 15)
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("database dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required"))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("auth token ttl must be positive"))
	}
	if err := c.RecoveryPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth recovery policy: %w", err))
	}
	if (c.Auth.Admin.UserName == "") != (c.Auth.Admin.Password == "") {
		errs = append(errs, errors.New("auth admin needs both user name and password"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	return errors.Join(errs...)
}

func (c Config) RecoveryPolicy() security.Policy {
	r := c.Auth.Recovery
	return security.Policy{
		Length:         r.Length,
		Uppercase:      r.Uppercase,
		Lowercase:      r.Lowercase,
		Numbers:        r.Numbers,
		Symbols:        r.Symbols,
		ExcludeSimilar: r.ExcludeSimilar,
	}
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
