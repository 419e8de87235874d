package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	Lending   LendingConfig   `yaml:"lending"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ops       OpsConfig       `yaml:"ops"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" (lib/pq) or "pgx"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LendingConfig contains the lending rules
type LendingConfig struct {
	MaxOpenLoans         int    `yaml:"max_open_loans"`
	DefaultLoanDays      int    `yaml:"default_loan_days"`
	DailyFineRate        string `yaml:"daily_fine_rate"`
	ReservationHoldHours int    `yaml:"reservation_hold_hours"` // 0 leaves expires_at unset
	ReminderWindowHours  int    `yaml:"reminder_window_hours"`
}

// SchedulerConfig contains cron schedule settings (with seconds, UTC)
type SchedulerConfig struct {
	MarkOverdueLoans   string `yaml:"mark_overdue_loans"`
	ExpireReservations string `yaml:"expire_reservations"`
	SendDueReminders   string `yaml:"send_due_reminders"`
}

// OpsConfig contains the health/trigger endpoint settings; port 0 disables it
type OpsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	if val := os.Getenv("STORE_TYPE"); val != "" {
		c.Store.Type = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Lending
	if val := os.Getenv("DAILY_FINE_RATE"); val != "" {
		c.Lending.DailyFineRate = val
	}

	// Ops
	if val := os.Getenv("OPS_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Ops.Port)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Store.Type == "" {
		c.Store.Type = "postgres"
	}
	switch c.Store.Type {
	case "postgres":
		if err := c.Database.validate(); err != nil {
			return err
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}

	// Lending defaults
	if c.Lending.MaxOpenLoans == 0 {
		c.Lending.MaxOpenLoans = 5
	}
	if c.Lending.MaxOpenLoans < 0 {
		return fmt.Errorf("max_open_loans must be positive: %d", c.Lending.MaxOpenLoans)
	}
	if c.Lending.DefaultLoanDays == 0 {
		c.Lending.DefaultLoanDays = 14
	}
	if c.Lending.DefaultLoanDays < 0 {
		return fmt.Errorf("default_loan_days must be positive: %d", c.Lending.DefaultLoanDays)
	}
	if c.Lending.DailyFineRate == "" {
		c.Lending.DailyFineRate = "0.50"
	}
	rate, err := decimal.NewFromString(c.Lending.DailyFineRate)
	if err != nil {
		return fmt.Errorf("invalid daily_fine_rate %q: %w", c.Lending.DailyFineRate, err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("daily_fine_rate must not be negative: %s", c.Lending.DailyFineRate)
	}
	if c.Lending.ReservationHoldHours < 0 {
		return fmt.Errorf("reservation_hold_hours must not be negative: %d", c.Lending.ReservationHoldHours)
	}
	if c.Lending.ReminderWindowHours == 0 {
		c.Lending.ReminderWindowHours = 24
	}
	if c.Lending.ReminderWindowHours < 0 {
		return fmt.Errorf("reminder_window_hours must not be negative: %d", c.Lending.ReminderWindowHours)
	}

	// Scheduler defaults
	if c.Scheduler.MarkOverdueLoans == "" {
		c.Scheduler.MarkOverdueLoans = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ExpireReservations == "" {
		c.Scheduler.ExpireReservations = "0 0 * * * *" // hourly
	}
	if c.Scheduler.SendDueReminders == "" {
		c.Scheduler.SendDueReminders = "0 0 9 * * *" // 9 AM UTC
	}

	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("invalid ops port: %d", c.Ops.Port)
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.Driver == "" {
		d.Driver = "postgres"
	}
	if d.Driver != "postgres" && d.Driver != "pgx" {
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	return nil
}

// FineRate returns the validated daily fine rate
func (c *Config) FineRate() decimal.Decimal {
	return decimal.RequireFromString(c.Lending.DailyFineRate)
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetOpsAddress returns the ops HTTP listen address
func (c *Config) GetOpsAddress() string {
	return fmt.Sprintf("%s:%d", c.Ops.Host, c.Ops.Port)
}
