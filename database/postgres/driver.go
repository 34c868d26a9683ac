package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/dbporter/dbporter/database"
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// Driver implements database.Driver for PostgreSQL
type Driver struct{}

// NewDriver creates a new PostgreSQL driver
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "postgres"
}

// QuoteIdentifier quotes an identifier with double quotes
func (d *Driver) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns $1, $2, etc.
func (d *Driver) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

// MaxParameters returns the wire-protocol bind limit (uint16)
func (d *Driver) MaxParameters() int {
	return 65535
}

// TableExists checks information_schema for the table in the current schema
func (d *Driver) TableExists(ctx context.Context, db database.DBTX, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			AND table_type = 'BASE TABLE'
			AND table_name = $1
		)
	`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// TruncateTable empties the table and resets its identity sequences.
// CASCADE is required because dependent tables may not have been
// truncated yet when iterating in reverse plan order.
func (d *Driver) TruncateTable(ctx context.Context, db database.DBTX, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", d.QuoteIdentifier(table))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate table %s: %w", table, err)
	}
	return nil
}

// SetIntegrityEnforcement toggles trigger and foreign-key enforcement for
// the session by switching the replication role. Requires a role with
// sufficient privileges (typically the table owner or a superuser).
func (d *Driver) SetIntegrityEnforcement(ctx context.Context, db database.DBTX, enabled bool) error {
	role := "replica"
	if enabled {
		role = "origin"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET session_replication_role = '%s'", role)); err != nil {
		return fmt.Errorf("failed to set session_replication_role to %s: %w", role, err)
	}
	return nil
}

// ResyncSequence advances the table's serial sequence to the maximum
// present key so subsequent inserts do not collide with migrated rows.
// When the table is empty the sequence is left at its starting value.
func (d *Driver) ResyncSequence(ctx context.Context, db database.DBTX, table, pkColumn string) error {
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s`,
		d.QuoteIdentifier(table), pkColumn,
		d.QuoteIdentifier(pkColumn), d.QuoteIdentifier(pkColumn),
		d.QuoteIdentifier(table),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to resync sequence for table %s: %w", table, err)
	}
	return nil
}

// IsMissingTable reports whether err carries the undefined_table SQLSTATE
func (d *Driver) IsMissingTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == undefinedTable
	}
	return false
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
