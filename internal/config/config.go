package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	NATS struct {
		Enabled       bool   `mapstructure:"enabled"`
		URL           string `mapstructure:"url"`
		Stream        string `mapstructure:"stream"`
		SubjectPrefix string `mapstructure:"subjectPrefix"`
		MaxAgeDays    int    `mapstructure:"maxAgeDays"` // Retention for the outcome stream (days)
	} `mapstructure:"nats"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	SMS struct {
		APIKey         string        `mapstructure:"apiKey"`
		SenderID       string        `mapstructure:"senderID"`
		BaseURL        string        `mapstructure:"baseURL"`
		Route          string        `mapstructure:"route"`         // Provider route, "q" = quality
		CountryPrefix  string        `mapstructure:"countryPrefix"` // Prepended to bare 10-digit numbers
		RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"sms"`
	RateLimit struct {
		PerDevice     int `mapstructure:"perDevice"`
		PerPhone      int `mapstructure:"perPhone"`
		WindowSeconds int `mapstructure:"windowSeconds"`
	} `mapstructure:"rateLimit"`
	Dedup struct {
		WindowSeconds int `mapstructure:"windowSeconds"`
	} `mapstructure:"dedup"`
	Business struct {
		DefaultDelayMinutes int    `mapstructure:"defaultDelayMinutes"`
		MaxRetryAttempts    int    `mapstructure:"maxRetryAttempts"`
		HoursStart          string `mapstructure:"hoursStart"` // Local HH:MM, inclusive
		HoursEnd            string `mapstructure:"hoursEnd"`   // Local HH:MM, inclusive
	} `mapstructure:"business"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// DispatcherConfig holds configuration for the dispatch worker
type DispatcherConfig struct {
	Interval  time.Duration `mapstructure:"interval"`  // Delay between dispatch cycles
	BatchSize int           `mapstructure:"batchSize"` // Max due messages fetched per cycle
	PoolSize  int           `mapstructure:"poolSize"`  // Concurrent send workers per cycle
	ClaimTTL  time.Duration `mapstructure:"claimTTL"`  // Stale claim takeover threshold
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.stream", "responder_events")
	v.SetDefault("nats.subjectPrefix", "v1.responder")
	v.SetDefault("nats.maxAgeDays", 7)

	v.SetDefault("sms.senderID", "TXTIND")
	v.SetDefault("sms.baseURL", "https://www.fast2sms.com/dev/bulkV2")
	v.SetDefault("sms.route", "q")
	v.SetDefault("sms.countryPrefix", "91")
	v.SetDefault("sms.requestTimeout", 30*time.Second)

	v.SetDefault("rateLimit.perDevice", 100)
	v.SetDefault("rateLimit.perPhone", 5)
	v.SetDefault("rateLimit.windowSeconds", 3600)
	v.SetDefault("dedup.windowSeconds", 3600)

	v.SetDefault("business.defaultDelayMinutes", 5)
	v.SetDefault("business.maxRetryAttempts", 3)
	v.SetDefault("business.hoursStart", "09:00")
	v.SetDefault("business.hoursEnd", "18:00")

	v.SetDefault("dispatcher.interval", time.Minute)
	v.SetDefault("dispatcher.batchSize", 50)
	v.SetDefault("dispatcher.poolSize", 4)
	v.SetDefault("dispatcher.claimTTL", 5*time.Minute)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.missed-call-responder")
	v.AddConfigPath("/etc/missed-call-responder")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
		v.Set("nats.enabled", true)
	}
	if apiKey := os.Getenv("FAST2SMS_API_KEY"); apiKey != "" {
		v.Set("sms.apiKey", apiKey)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validate rejects option combinations the core cannot run with.
func validate(cfg *Config) error {
	if cfg.Business.MaxRetryAttempts < 1 {
		return fmt.Errorf("business.maxRetryAttempts must be >= 1, got %d", cfg.Business.MaxRetryAttempts)
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rateLimit.windowSeconds must be > 0, got %d", cfg.RateLimit.WindowSeconds)
	}
	if cfg.Dedup.WindowSeconds <= 0 {
		return fmt.Errorf("dedup.windowSeconds must be > 0, got %d", cfg.Dedup.WindowSeconds)
	}
	if _, err := ParseClock(cfg.Business.HoursStart); err != nil {
		return fmt.Errorf("business.hoursStart: %w", err)
	}
	if _, err := ParseClock(cfg.Business.HoursEnd); err != nil {
		return fmt.Errorf("business.hoursEnd: %w", err)
	}
	if cfg.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batchSize must be > 0, got %d", cfg.Dispatcher.BatchSize)
	}
	if cfg.Dispatcher.PoolSize <= 0 {
		return fmt.Errorf("dispatcher.poolSize must be > 0, got %d", cfg.Dispatcher.PoolSize)
	}
	return nil
}

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses a "HH:MM" string into a Clock.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf extracts the Clock for the given moment in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Hour returns the hour component of the clock value.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component of the clock value.
func (c Clock) Minute() int { return int(c) % 60 }

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
