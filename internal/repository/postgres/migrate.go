package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"library-lending-core/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the lending tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.Info("Applying lending schema")
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
