package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Section names recognised in the configuration file
const (
	SectionServer   = "SNOWFLAKE_SERVER"
	SectionDataPull = "SNOWFLAKE_DATAPULL"
	SectionQueries  = "QUERIES"
)

// Defaults applied when the file leaves a setting out
const (
	DefaultSQLQuery = "customer.sql"
	DefaultOutput   = "output.csv"
	DefaultFormat   = "csv"
	DefaultDriver   = "snowflake"
)

var (
	ErrNotFound        = errors.New("config file not found")
	ErrMissingSections = errors.New("required config sections missing")
	ErrMissingKey      = errors.New("connection setting missing")
)

// Config is the configuration of a single run. It is built once by Load and
// never mutated afterwards.
type Config struct {
	Path       string      `koanf:"-"`
	Connection Connection  `koanf:"connection"`
	Queries    QuerySource `koanf:"queries"`
}

// Connection holds the merged SNOWFLAKE_SERVER and SNOWFLAKE_DATAPULL settings
type Connection struct {
	// Driver selects the session backend (snowflake, postgres, mssql, databricks, duckdb, bigquery)
	Driver string `koanf:"driver"`

	Account   string `koanf:"account"`
	User      string `koanf:"user"`
	Password  string `koanf:"password"`
	Warehouse string `koanf:"warehouse"`
	Database  string `koanf:"database"`
	Schema    string `koanf:"schema"`
	Role      string `koanf:"role"`

	// Host and Port are used by the non-Snowflake drivers
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// BigQuery specific
	Project         string `koanf:"project"`
	CredentialsFile string `koanf:"credentials_file"`
	Location        string `koanf:"location"`
}

// QuerySource holds the optional QUERIES section
type QuerySource struct {
	SQLQuery string `koanf:"sql_query"`
	Output   string `koanf:"output"`
	Format   string `koanf:"format"`
}

// Get returns a connection setting by its config key.
func (c Connection) Get(key string) (string, bool) {
	var v string
	switch key {
	case "driver":
		v = c.Driver
	case "account":
		v = c.Account
	case "user":
		v = c.User
	case "password":
		v = c.Password
	case "warehouse":
		v = c.Warehouse
	case "database":
		v = c.Database
	case "schema":
		v = c.Schema
	case "role":
		v = c.Role
	case "host":
		v = c.Host
	case "project":
		v = c.Project
	case "credentials_file":
		v = c.CredentialsFile
	case "location":
		v = c.Location
	default:
		return "", false
	}
	return v, strings.TrimSpace(v) != ""
}

// Require fails on the first key that is absent or blank.
func (c Connection) Require(keys ...string) error {
	for _, key := range keys {
		if _, ok := c.Get(key); !ok {
			return fmt.Errorf("%w: %q", ErrMissingKey, key)
		}
	}
	return nil
}

// LogValue keeps the password out of log output.
func (c Connection) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("driver", c.Driver),
		slog.String("account", c.Account),
		slog.String("user", c.User),
		slog.String("warehouse", c.Warehouse),
		slog.String("database", c.Database),
		slog.String("schema", c.Schema),
		slog.String("role", c.Role),
	}
	if c.Host != "" {
		attrs = append(attrs, slog.String("host", c.Host))
	}
	if c.Password != "" {
		attrs = append(attrs, slog.String("password", "***"))
	}
	return slog.GroupValue(attrs...)
}
