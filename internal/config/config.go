package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Ingest   IngestConfig
	Quota    QuotaConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ProviderConfig holds Tiingo API specific configuration
type ProviderConfig struct {
	BaseURL        string `validate:"required,url"`
	APIKey         string
	Timeout        time.Duration
	EODSource      string `validate:"required"`
	IntradaySource string `validate:"required"`
}

// IngestConfig holds ingestion specific configuration
type IngestConfig struct {
	Symbols          []string `validate:"min=1,dive,required"`
	InitStartDate    string   `validate:"required,datetime=2006-01-02"`
	Timezone         string   `validate:"required"`
	EODCron          string
	EODInterval      time.Duration `validate:"min=0"`
	IntradayEnabled  bool
	IntradayResample string
	IntradayWindow   time.Duration `validate:"min=0"`
	IntradayInterval time.Duration `validate:"min=0"`
	PacingDelay      time.Duration `validate:"min=0"`
}

// QuotaConfig holds provider quota specific configuration
type QuotaConfig struct {
	Policy            string `validate:"oneof=guard bucket"`
	MaxCallsPerDay    int    `validate:"min=0"`
	MaxCallsPerHour   int    `validate:"min=0"`
	MaxCallsPerMinute int    `validate:"min=0"`
	Buffer            int    `validate:"min=0"`
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Brokers         string
	ClientID        string
	RunReportsTopic string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

var resamplePattern = regexp.MustCompile(`^([0-9]+)(min|sec)$`)

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Symbols are matched against provider and store case-sensitively
	for i, s := range cfg.Ingest.Symbols {
		cfg.Ingest.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration and fails before any job is scheduled
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: unknown timezone %q: %w", c.Ingest.Timezone, err)
	}

	if c.Ingest.EODCron != "" {
		if _, err := cron.ParseStandard(c.Ingest.EODCron); err != nil {
			return fmt.Errorf("invalid configuration: bad EOD cron expression %q: %w", c.Ingest.EODCron, err)
		}
	}

	if c.Ingest.IntradayEnabled {
		if _, err := c.Ingest.ResampleSeconds(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if c.Quota.MaxCallsPerDay > 0 && c.Quota.Buffer >= c.Quota.MaxCallsPerDay {
		return fmt.Errorf("invalid configuration: quota buffer %d consumes the entire daily limit %d",
			c.Quota.Buffer, c.Quota.MaxCallsPerDay)
	}

	return nil
}

// Location returns the configured timezone. Validate must have passed.
func (c *IngestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InitStart returns the configured backfill start date at UTC midnight.
func (c *IngestConfig) InitStart() time.Time {
	t, err := time.Parse("2006-01-02", c.InitStartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ResampleSeconds converts the intraday resample string ("5min", "30sec")
// to its bar interval in seconds.
func (c *IngestConfig) ResampleSeconds() (int, error) {
	m := resamplePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(c.IntradayResample)))
	if m == nil {
		return 0, fmt.Errorf("invalid intraday resample %q (expected e.g. \"1min\" or \"30sec\")", c.IntradayResample)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid intraday resample %q", c.IntradayResample)
	}
	if m[2] == "min" {
		return n * 60, nil
	}
	return n, nil
}

// BrokerList splits the comma separated broker string; empty means disabled.
func (c *KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	// Provider defaults
	v.SetDefault("provider.baseURL", "https://api.tiingo.com")
	v.SetDefault("provider.timeout", "20s")
	v.SetDefault("provider.eodSource", "tiingo")
	v.SetDefault("provider.intradaySource", "tiingo_iex")

	// Ingest defaults
	v.SetDefault("ingest.initStartDate", "2020-01-01")
	v.SetDefault("ingest.timezone", "UTC")
	v.SetDefault("ingest.eodInterval", "24h")
	v.SetDefault("ingest.intradayEnabled", false)
	v.SetDefault("ingest.intradayResample", "1min")
	v.SetDefault("ingest.intradayWindow", "60m")
	v.SetDefault("ingest.pacingDelay", "1s")

	// Quota defaults
	v.SetDefault("quota.policy", "guard")
	v.SetDefault("quota.maxCallsPerDay", 0)
	v.SetDefault("quota.maxCallsPerHour", 0)
	v.SetDefault("quota.maxCallsPerMinute", 0)
	v.SetDefault("quota.buffer", 0)

	// Kafka defaults (publishing disabled unless brokers are set)
	v.SetDefault("kafka.clientID", "price-ingest-service")
	v.SetDefault("kafka.runReportsTopic", "price-ingest-runs")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
