package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/amc-simulator/amc_simulator/pkg/version"
)

// Config holds all configuration for the application
type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Version     string            `mapstructure:"version"` // overrides the build-time version when set
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig is optional. Without a URL or host the maintenance lock
// falls back to a process-local no-op.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether Redis is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != ""
}

type SimulationConfig struct {
	AutoStart             bool          `mapstructure:"auto_start"`
	Seed                  uint64        `mapstructure:"seed"` // 0 picks a random seed
	CustomerInterval      time.Duration `mapstructure:"customer_interval"`
	FolioInterval         time.Duration `mapstructure:"folio_interval"`
	TransactionInterval   time.Duration `mapstructure:"transaction_interval"`
	SettlementInterval    time.Duration `mapstructure:"settlement_interval"`
	SIPInterval           time.Duration `mapstructure:"sip_interval"`
	NAVInterval           time.Duration `mapstructure:"nav_interval"`
	SettlementDelay       time.Duration `mapstructure:"settlement_delay"`
	SettlementBatchSize   int           `mapstructure:"settlement_batch_size"`
	MaxSettlementAttempts int           `mapstructure:"max_settlement_attempts"`
	MaxFoliosPerCustomer  int           `mapstructure:"max_folios_per_customer"`
	SkipOverlappingTicks  bool          `mapstructure:"skip_overlapping_ticks"`
	BulkWorkers           int           `mapstructure:"bulk_workers"`
}

type MaintenanceConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Timezone               string        `mapstructure:"timezone"`
	JobTimeout             time.Duration `mapstructure:"job_timeout"`
	PruneSchedule          string        `mapstructure:"prune_schedule"`
	AuditSchedule          string        `mapstructure:"audit_schedule"`
	ReconciliationSchedule string        `mapstructure:"reconciliation_schedule"`
	StatisticsSchedule     string        `mapstructure:"statistics_schedule"`
	NAVRetentionDays       int           `mapstructure:"nav_retention_days"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := overrideFromEnv(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" && config.Database.Host != "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_min", 300)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "amc_simulator")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Simulation defaults
	v.SetDefault("simulation.auto_start", false)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.customer_interval", 10*time.Second)
	v.SetDefault("simulation.folio_interval", 30*time.Second)
	v.SetDefault("simulation.transaction_interval", 15*time.Second)
	v.SetDefault("simulation.settlement_interval", 60*time.Second)
	v.SetDefault("simulation.sip_interval", 5*time.Minute)
	v.SetDefault("simulation.nav_interval", time.Hour)
	v.SetDefault("simulation.settlement_delay", 120*time.Second)
	v.SetDefault("simulation.settlement_batch_size", 20)
	v.SetDefault("simulation.max_settlement_attempts", 3)
	v.SetDefault("simulation.max_folios_per_customer", 100)
	v.SetDefault("simulation.skip_overlapping_ticks", true)
	v.SetDefault("simulation.bulk_workers", 4)

	// Maintenance defaults
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.timezone", "UTC")
	v.SetDefault("maintenance.job_timeout", 30*time.Minute)
	v.SetDefault("maintenance.prune_schedule", "0 0 2 * * *")
	v.SetDefault("maintenance.audit_schedule", "0 0 3 * * 0")
	v.SetDefault("maintenance.reconciliation_schedule", "0 0 4 1 * *")
	v.SetDefault("maintenance.statistics_schedule", "0 5 0 * * *")
	v.SetDefault("maintenance.nav_retention_days", 5*365)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", version.Service)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// durationEnv maps an environment variable to a duration key. Bare numbers
// are seconds; anything else must parse with time.ParseDuration.
var durationEnv = map[string]string{
	"CUSTOMER_CREATION_INTERVAL":    "simulation.customer_interval",
	"FOLIO_CREATION_INTERVAL":       "simulation.folio_interval",
	"TRANSACTION_CREATION_INTERVAL": "simulation.transaction_interval",
	"CAMS_PROCESSING_DELAY":         "simulation.settlement_delay",
}

func overrideFromEnv(v *viper.Viper) error {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("server.port", p)
		}
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}

	// Redis
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		v.Set("redis.url", redisURL)
	}

	// Simulation
	for env, key := range durationEnv {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		v.Set(key, d)
	}

	if maxFolios := os.Getenv("MAX_FOLIOS_PER_CUSTOMER"); maxFolios != "" {
		n, err := strconv.Atoi(maxFolios)
		if err != nil {
			return fmt.Errorf("invalid MAX_FOLIOS_PER_CUSTOMER: %w", err)
		}
		v.Set("simulation.max_folios_per_customer", n)
	}

	if autoStart := os.Getenv("AUTO_START_SIMULATION"); autoStart != "" {
		b, err := strconv.ParseBool(autoStart)
		if err != nil {
			return fmt.Errorf("invalid AUTO_START_SIMULATION: %w", err)
		}
		v.Set("simulation.auto_start", b)
	}

	// Tracing
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		v.Set("tracing.endpoint", endpoint)
		v.Set("tracing.enabled", true)
	}

	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func validate(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database configuration is required")
	}

	intervals := map[string]time.Duration{
		"customer_interval":    config.Simulation.CustomerInterval,
		"folio_interval":       config.Simulation.FolioInterval,
		"transaction_interval": config.Simulation.TransactionInterval,
		"settlement_interval":  config.Simulation.SettlementInterval,
		"sip_interval":         config.Simulation.SIPInterval,
		"nav_interval":         config.Simulation.NAVInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("simulation.%s must be positive", name)
		}
	}
	if config.Simulation.SettlementDelay < 0 {
		return fmt.Errorf("simulation.settlement_delay must not be negative")
	}
	if config.Simulation.MaxFoliosPerCustomer <= 0 {
		return fmt.Errorf("simulation.max_folios_per_customer must be positive")
	}
	if config.Simulation.MaxSettlementAttempts <= 0 {
		return fmt.Errorf("simulation.max_settlement_attempts must be positive")
	}

	return nil
}
