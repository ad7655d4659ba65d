package main

import (
	"bugmaschine/get621/catalog"
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinCooldown rejects unitless cooldowns, which would otherwise disable the
// rate limit.
const MinCooldown = time.Millisecond

type S3Settings struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type Config struct {
	BaseURL   string
	NSFW      bool
	UserAgent string
	Cooldown  time.Duration
	Timeout   time.Duration

	Dest   string
	LogDir string
	Debug  bool

	S3 S3Settings
	DB catalog.Settings
}

// loadDotenv reads .env into the environment, it never overrides variables
// that are already set.
func loadDotenv() {
	err := godotenv.Load()
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logging.Debug("No .env file found")
	default:
		logging.Warn("Error loading .env file: %v", err)
	}
}

// newViper sets the defaults and sources. Environment variables are prefixed
// with GET621_, so GET621_COOLDOWN=2s overrides cooldown. Command-line flags
// are bound later by parseArgs and win over everything else.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("base_url", "")
	v.SetDefault("nsfw", false)
	v.SetDefault("user_agent", e621.DefaultUserAgent)
	v.SetDefault("cooldown", e621.DefaultCooldown)
	v.SetDefault("timeout", 0)
	v.SetDefault("dest", "")
	v.SetDefault("log_dir", "")
	v.SetDefault("debug", false)

	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "get621")
	v.SetDefault("db_user", "")
	v.SetDefault("db_pass", "")

	v.SetEnvPrefix("GET621")
	v.AutomaticEnv()

	v.SetConfigName("get621")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "get621"))
	}
	return v
}

func loadConfig(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	} else {
		logging.Debug("Using config file %v", v.ConfigFileUsed())
	}

	cfg := Config{
		BaseURL:   v.GetString("base_url"),
		NSFW:      v.GetBool("nsfw"),
		UserAgent: v.GetString("user_agent"),
		Cooldown:  v.GetDuration("cooldown"),
		Timeout:   v.GetDuration("timeout"),
		Dest:      v.GetString("dest"),
		LogDir:    v.GetString("log_dir"),
		Debug:     v.GetBool("debug"),
		S3: S3Settings{
			Bucket:    v.GetString("s3_bucket"),
			Region:    v.GetString("s3_region"),
			Endpoint:  v.GetString("s3_endpoint"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
		},
		DB: catalog.Settings{
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			Name:     v.GetString("db_name"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_pass"),
		},
	}

	if cfg.Cooldown < 0 {
		return Config{}, &e621.InvalidArgumentError{Arg: "cooldown", Msg: "must not be negative"}
	}
	// a bare number is read as nanoseconds
	if cfg.Cooldown > 0 && cfg.Cooldown < MinCooldown {
		return Config{}, &e621.InvalidArgumentError{Arg: "cooldown", Msg: fmt.Sprintf("%v is below %v, durations need a unit (e.g. 1500ms)", cfg.Cooldown, MinCooldown)}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = e621.SafeBaseURL
		if cfg.NSFW {
			cfg.BaseURL = e621.NSFWBaseURL
		}
	}
	return cfg, nil
}

func (c Config) clientConfig() e621.Config {
	return e621.Config{
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		Cooldown:  c.Cooldown,
		Timeout:   c.Timeout,
	}
}
