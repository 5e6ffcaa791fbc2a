package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gerhard-ee/datapull/internal/config"
	"github.com/gerhard-ee/datapull/internal/table"
)

// Session is one open connection to the remote database
type Session interface {
	// Query executes a statement and returns its full result. params are
	// positional bind values handed to the driver, never spliced into the text.
	Query(ctx context.Context, query string, params ...interface{}) (*table.Table, error)
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Connector opens sessions from connection settings
type Connector interface {
	Connect(ctx context.Context, conn config.Connection) (Session, error)
}

// Supported drivers
const (
	DriverSnowflake  = "snowflake"
	DriverPostgres   = "postgres"
	DriverMSSQL      = "mssql"
	DriverDatabricks = "databricks"
	DriverDuckDB     = "duckdb"
	DriverBigQuery   = "bigquery"
)

// NewConnector creates a connector for the named driver
func NewConnector(driver string, logger *slog.Logger) (Connector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch strings.ToLower(driver) {
	case "", DriverSnowflake:
		return newSQLConnector("snowflake", snowflakeDSN, logger), nil
	case DriverPostgres:
		return newSQLConnector("postgres", postgresDSN, logger), nil
	case DriverMSSQL:
		return newSQLConnector("sqlserver", mssqlDSN, logger), nil
	case DriverDatabricks:
		return newSQLConnector("databricks", databricksDSN, logger), nil
	case DriverDuckDB:
		return newSQLConnector("duckdb", duckdbDSN, logger), nil
	case DriverBigQuery:
		return NewBigQueryConnector(logger), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", driver)
	}
}
