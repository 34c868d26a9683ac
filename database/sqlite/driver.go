package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dbporter/dbporter/database"
)

// Driver implements database.Driver for SQLite. It also serves libSQL
// connections, which speak the SQLite dialect.
type Driver struct{}

// NewDriver creates a new SQLite driver
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "sqlite"
}

// QuoteIdentifier quotes an identifier with double quotes
func (d *Driver) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns ? regardless of position
func (d *Driver) Placeholder(position int) string {
	return "?"
}

// MaxParameters returns the default SQLITE_MAX_VARIABLE_NUMBER
func (d *Driver) MaxParameters() int {
	return 32766
}

// TableExists checks sqlite_master for the table
func (d *Driver) TableExists(ctx context.Context, db database.DBTX, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return true, nil
}

// TruncateTable deletes all rows and resets the AUTOINCREMENT counter.
// SQLite has no TRUNCATE; DELETE without a WHERE clause uses the
// truncate optimization. The sqlite_sequence row only exists for
// AUTOINCREMENT tables, so a missing row is not an error.
func (d *Driver) TruncateTable(ctx context.Context, db database.DBTX, table string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", d.QuoteIdentifier(table))); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", table, err)
	}
	// sqlite_sequence does not exist until an AUTOINCREMENT table is created
	seqExists, err := d.TableExists(ctx, db, "sqlite_sequence")
	if err != nil {
		return err
	}
	if seqExists {
		if _, err := db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
			return fmt.Errorf("failed to reset sequence for table %s: %w", table, err)
		}
	}
	return nil
}

// SetIntegrityEnforcement toggles foreign-key enforcement for the session
func (d *Driver) SetIntegrityEnforcement(ctx context.Context, db database.DBTX, enabled bool) error {
	value := "OFF"
	if enabled {
		value = "ON"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA foreign_keys = %s", value)); err != nil {
		return fmt.Errorf("failed to set PRAGMA foreign_keys to %s: %w", value, err)
	}
	return nil
}

// ResyncSequence sets the sqlite_sequence counter to the maximum present
// key. Only meaningful for AUTOINCREMENT tables; for plain INTEGER
// PRIMARY KEY tables SQLite derives the next rowid from MAX directly.
func (d *Driver) ResyncSequence(ctx context.Context, db database.DBTX, table, pkColumn string) error {
	var max *int64
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", d.QuoteIdentifier(pkColumn), d.QuoteIdentifier(table))
	if err := db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return fmt.Errorf("failed to read max %s for table %s: %w", pkColumn, table, err)
	}
	if max == nil {
		return nil
	}
	seqExists, err := d.TableExists(ctx, db, "sqlite_sequence")
	if err != nil {
		return err
	}
	if !seqExists {
		// No AUTOINCREMENT table in the database; SQLite derives the
		// next rowid from MAX directly
		return nil
	}
	res, err := db.ExecContext(ctx, "UPDATE sqlite_sequence SET seq = ? WHERE name = ?", *max, table)
	if err != nil {
		return fmt.Errorf("failed to resync sequence for table %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Cleared by TruncateTable; recreate the counter row
		if _, err := db.ExecContext(ctx, "INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", table, *max); err != nil {
			return fmt.Errorf("failed to resync sequence for table %s: %w", table, err)
		}
	}
	return nil
}

// IsMissingTable always returns false: SQLite reports a missing table as a
// generic SQLITE_ERROR with no distinguishable code, so callers must rely
// on TableExists instead of error classification.
func (d *Driver) IsMissingTable(err error) bool {
	return false
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
