package database

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is the subset of database/sql handles the drivers operate on.
// *sql.DB, *sql.Conn, and *sql.Tx all satisfy it, which lets the executor
// pin the destination to a single connection while reads use the pool.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver abstracts the engine-specific pieces of moving table data:
// existence checks, identity-resetting truncation, referential-integrity
// toggling, and primary-key sequence resynchronization.
type Driver interface {
	// Name returns the driver name (e.g., "postgres", "mysql", "sqlite")
	Name() string

	// QuoteIdentifier quotes a table or column name for this engine
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for a 1-based position
	// PostgreSQL: $1, $2, ... Others: ?
	Placeholder(position int) string

	// MaxParameters returns the engine's per-statement bind-variable
	// limit. Bulk inserts must keep rows × columns under this.
	MaxParameters() int

	// TableExists reports whether the named table exists
	TableExists(ctx context.Context, db DBTX, table string) (bool, error)

	// TruncateTable removes all rows from the table and resets its
	// identity generator to the default starting value
	TruncateTable(ctx context.Context, db DBTX, table string) error

	// SetIntegrityEnforcement enables or disables referential-integrity
	// checking for the session behind db. Callers must run this on the
	// same session as the writes it is meant to cover.
	SetIntegrityEnforcement(ctx context.Context, db DBTX, enabled bool) error

	// ResyncSequence advances the table's identity generator to one past
	// the maximum value in pkColumn, or leaves it at the default when the
	// table is empty
	ResyncSequence(ctx context.Context, db DBTX, table, pkColumn string) error

	// IsMissingTable reports whether err is the engine's structured
	// "table does not exist" error. Drivers without a distinguishable
	// error code return false; callers are expected to use TableExists
	// as the primary check.
	IsMissingTable(err error) bool
}

// DetectDriver determines the driver name from a connection string.
func DetectDriver(connString string) string {
	lower := strings.ToLower(connString)

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql"
	case strings.HasPrefix(lower, "libsql://"), strings.HasPrefix(lower, "wss://"), strings.HasPrefix(lower, "ws://"):
		return "libsql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return "sqlite"
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	case strings.Contains(connString, "@tcp("):
		// go-sql-driver DSN form: user:pass@tcp(host:port)/dbname
		return "mysql"
	default:
		return "postgres"
	}
}

// SQLDriverName maps a driver name to the name registered with database/sql.
func SQLDriverName(driverType string) string {
	switch driverType {
	case "libsql":
		return "libsql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mysql":
		return "mysql"
	default:
		return "postgres"
	}
}

// NormalizeDSN strips URL-style prefixes that the underlying sql driver
// does not accept (mysql:// and sqlite://).
func NormalizeDSN(driverType, connString string) string {
	switch driverType {
	case "mysql":
		return strings.TrimPrefix(connString, "mysql://")
	case "sqlite", "sqlite3":
		return strings.TrimPrefix(connString, "sqlite://")
	default:
		return connString
	}
}
