package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/dbporter/dbporter/database"
)

// noSuchTable is the MySQL server error number for a missing table (ER_NO_SUCH_TABLE).
const noSuchTable = 1146

// Driver implements database.Driver for MySQL and MariaDB
type Driver struct{}

// NewDriver creates a new MySQL driver
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns the database driver name
func (d *Driver) Name() string {
	return "mysql"
}

// QuoteIdentifier quotes an identifier with backticks
func (d *Driver) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns ? regardless of position
func (d *Driver) Placeholder(position int) string {
	return "?"
}

// MaxParameters returns the prepared-statement placeholder limit (uint16)
func (d *Driver) MaxParameters() int {
	return 65535
}

// TableExists checks information_schema for the table in the current database
func (d *Driver) TableExists(ctx context.Context, db database.DBTX, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = DATABASE()
			AND table_name = ?
		)
	`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// TruncateTable empties the table. TRUNCATE resets AUTO_INCREMENT on its own.
func (d *Driver) TruncateTable(ctx context.Context, db database.DBTX, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s", d.QuoteIdentifier(table))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate table %s: %w", table, err)
	}
	return nil
}

// SetIntegrityEnforcement toggles FOREIGN_KEY_CHECKS for the session
func (d *Driver) SetIntegrityEnforcement(ctx context.Context, db database.DBTX, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET FOREIGN_KEY_CHECKS = %d", value)); err != nil {
		return fmt.Errorf("failed to set FOREIGN_KEY_CHECKS to %d: %w", value, err)
	}
	return nil
}

// ResyncSequence sets the table's AUTO_INCREMENT to one past the maximum
// present key. An empty table keeps its default counter.
func (d *Driver) ResyncSequence(ctx context.Context, db database.DBTX, table, pkColumn string) error {
	var max *int64
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", d.QuoteIdentifier(pkColumn), d.QuoteIdentifier(table))
	if err := db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return fmt.Errorf("failed to read max %s for table %s: %w", pkColumn, table, err)
	}
	if max == nil {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", d.QuoteIdentifier(table), *max+1)
	if _, err := db.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("failed to resync AUTO_INCREMENT for table %s: %w", table, err)
	}
	return nil
}

// IsMissingTable reports whether err carries server error 1146
func (d *Driver) IsMissingTable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == noSuchTable
	}
	return false
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
