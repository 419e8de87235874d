package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  type: memory
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Lending.MaxOpenLoans)
	assert.Equal(t, 14, cfg.Lending.DefaultLoanDays)
	assert.Equal(t, "0.50", cfg.Lending.DailyFineRate)
	assert.Equal(t, "0.5", cfg.FineRate().String())
	assert.Equal(t, 0, cfg.Lending.ReservationHoldHours)
	assert.Equal(t, 24, cfg.Lending.ReminderWindowHours)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.MarkOverdueLoans)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.ExpireReservations)
	assert.Equal(t, "0 0 9 * * *", cfg.Scheduler.SendDueReminders)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestParse_Postgres(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		cfg, err := Parse([]byte(`
database:
  driver: pgx
  host: db
  user: lms
  password: secret
  database: lending
lending:
  daily_fine_rate: "1.25"
`))
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Store.Type)
		assert.Equal(t, "pgx", cfg.Database.Driver)
		assert.Equal(t, "postgres://lms:secret@db:5432/lending?sslmode=disable", cfg.GetDatabaseConnectionString())
		assert.Equal(t, "1.25", cfg.FineRate().StringFixed(2))
	})

	t.Run("Missing host", func(t *testing.T) {
		_, err := Parse([]byte(`
database:
  user: lms
  database: lending
`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database host is required")
	})

	t.Run("Unknown driver", func(t *testing.T) {
		_, err := Parse([]byte(`
database:
  driver: mysql
  host: db
  user: lms
  database: lending
`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}

func TestParse_InvalidLending(t *testing.T) {
	_, err := Parse([]byte(`
store:
  type: memory
lending:
  daily_fine_rate: "abc"
`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid daily_fine_rate")

	_, err = Parse([]byte(`
store:
  type: memory
lending:
  daily_fine_rate: "-1"
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
store:
  type: memory
lending:
  reminder_window_hours: -1
`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reminder_window_hours must not be negative")
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("DAILY_FINE_RATE", "0.75")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "0.75", cfg.Lending.DailyFineRate)
	assert.Equal(t, "debug", cfg.Log.Level)
}
