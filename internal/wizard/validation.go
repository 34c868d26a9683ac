package wizard

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// ValidateEnvironmentName checks if an environment name is valid
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name cannot be empty")
	}

	for _, ch := range name {
		isValid := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
		if !isValid {
			return fmt.Errorf("environment name must contain only letters, numbers, underscores, and hyphens")
		}
	}

	return nil
}

// ValidatePort checks if a port number is valid
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	return nil
}

// BuildConnectionString constructs the connection URL for a connection input
func BuildConnectionString(conn ConnectionInput) string {
	switch conn.DatabaseType {
	case "postgres":
		// Auto-detect SSL mode based on host
		sslMode := "require"
		if conn.Host == "localhost" || conn.Host == "127.0.0.1" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
			conn.User, conn.Password, conn.Host, conn.Port, conn.Database, sslMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			conn.User, conn.Password, conn.Host, conn.Port, conn.Database)
	case "sqlite":
		return conn.FilePath
	case "libsql":
		if conn.AuthToken != "" {
			return fmt.Sprintf("%s?authToken=%s", conn.URL, conn.AuthToken)
		}
		return conn.URL
	default:
		return ""
	}
}

// TestConnection attempts to connect to the database
func TestConnection(connStr string, dbType string) error {
	var driverName string
	switch dbType {
	case "postgres":
		driverName = "postgres"
	case "mysql":
		driverName = "mysql"
	case "sqlite":
		driverName = "sqlite"
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case "libsql":
		driverName = "libsql"
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
