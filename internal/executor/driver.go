package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbporter/dbporter/database"
	"github.com/dbporter/dbporter/database/mysql"
	"github.com/dbporter/dbporter/database/postgres"
	"github.com/dbporter/dbporter/database/sqlite"
)

// NewDriver creates a new database driver based on the driver name.
func NewDriver(databaseType string) (database.Driver, error) {
	switch databaseType {
	case "postgres", "postgresql":
		return postgres.NewDriver(), nil
	case "mysql", "mariadb":
		return mysql.NewDriver(), nil
	case "sqlite", "sqlite3", "libsql":
		// libSQL speaks the SQLite dialect
		return sqlite.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
}

// Open connects to a database by connection string, detecting the engine
// and verifying the connection with a ping.
func Open(ctx context.Context, connString string) (Conn, error) {
	driverType := database.DetectDriver(connString)
	driver, err := NewDriver(driverType)
	if err != nil {
		return Conn{}, err
	}

	db, err := sql.Open(database.SQLDriverName(driverType), database.NormalizeDSN(driverType, connString))
	if err != nil {
		return Conn{}, fmt.Errorf("failed to open %s connection: %w", driverType, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Conn{}, fmt.Errorf("failed to ping %s database: %w", driverType, err)
	}

	return Conn{DB: db, Driver: driver}, nil
}
