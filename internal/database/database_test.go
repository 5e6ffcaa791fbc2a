package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerhard-ee/datapull/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func snowflakeConnection() config.Connection {
	return config.Connection{
		Driver:    DriverSnowflake,
		Account:   "xy12345",
		User:      "analyst",
		Password:  "p@ss word",
		Warehouse: "COMPUTE_WH",
		Database:  "SALES",
		Schema:    "PUBLIC",
		Role:      "ANALYST",
	}
}

func TestSnowflakeDSN(t *testing.T) {
	dsn, err := snowflakeDSN(snowflakeConnection())
	require.NoError(t, err)

	cfg, err := sf.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "xy12345", cfg.Account)
	assert.Equal(t, "analyst", cfg.User)
	assert.Equal(t, "p@ss word", cfg.Password)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
	assert.Equal(t, "SALES", cfg.Database)
	assert.Equal(t, "PUBLIC", cfg.Schema)
	assert.Equal(t, "ANALYST", cfg.Role)
}

func TestSnowflakeDSN_MissingKey(t *testing.T) {
	for _, key := range snowflakeKeys {
		t.Run(key, func(t *testing.T) {
			conn := snowflakeConnection()
			switch key {
			case "account":
				conn.Account = ""
			case "user":
				conn.User = ""
			case "password":
				conn.Password = ""
			case "warehouse":
				conn.Warehouse = ""
			case "database":
				conn.Database = ""
			case "schema":
				conn.Schema = ""
			case "role":
				conn.Role = ""
			}

			_, err := snowflakeDSN(conn)
			require.ErrorIs(t, err, config.ErrMissingKey)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestOtherDSNs(t *testing.T) {
	conn := config.Connection{
		Host:      "db.internal",
		User:      "etl",
		Password:  "pw",
		Database:  "analytics",
		Schema:    "mart",
		Warehouse: "sql/1.0/warehouses/abc123",
	}

	t.Run("postgres", func(t *testing.T) {
		dsn, err := postgresDSN(conn)
		require.NoError(t, err)
		u, err := url.Parse(dsn)
		require.NoError(t, err)
		assert.Equal(t, "postgres", u.Scheme)
		assert.Equal(t, "db.internal:5432", u.Host)
		assert.Equal(t, "/analytics", u.Path)
		assert.Equal(t, "mart", u.Query().Get("search_path"))
	})

	t.Run("postgres custom port", func(t *testing.T) {
		c := conn
		c.Port = 6543
		dsn, err := postgresDSN(c)
		require.NoError(t, err)
		assert.Contains(t, dsn, "db.internal:6543")
	})

	t.Run("mssql", func(t *testing.T) {
		dsn, err := mssqlDSN(conn)
		require.NoError(t, err)
		u, err := url.Parse(dsn)
		require.NoError(t, err)
		assert.Equal(t, "sqlserver", u.Scheme)
		assert.Equal(t, "db.internal:1433", u.Host)
		assert.Equal(t, "analytics", u.Query().Get("database"))
	})

	t.Run("databricks", func(t *testing.T) {
		dsn, err := databricksDSN(conn)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(dsn, "token:pw@db.internal:443/sql/1.0/warehouses/abc123?"))
		assert.Contains(t, dsn, "catalog=analytics")
		assert.Contains(t, dsn, "schema=mart")
	})

	t.Run("duckdb", func(t *testing.T) {
		dsn, err := duckdbDSN(config.Connection{Database: "/tmp/sample.duckdb"})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/sample.duckdb", dsn)
	})

	t.Run("missing host", func(t *testing.T) {
		c := conn
		c.Host = ""
		for _, fn := range []dsnFunc{postgresDSN, mssqlDSN, databricksDSN} {
			_, err := fn(c)
			assert.ErrorIs(t, err, config.ErrMissingKey)
		}
	})
}

func TestNewConnector(t *testing.T) {
	tests := []struct {
		driver     string
		driverName string
		wantErr    bool
	}{
		{driver: "", driverName: "snowflake"},
		{driver: "Snowflake", driverName: "snowflake"},
		{driver: "postgres", driverName: "postgres"},
		{driver: "mssql", driverName: "sqlserver"},
		{driver: "databricks", driverName: "databricks"},
		{driver: "duckdb", driverName: "duckdb"},
		{driver: "bigquery"},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			c, err := NewConnector(tt.driver, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.driverName == "" {
				assert.IsType(t, &BigQueryConnector{}, c)
				return
			}
			sc, ok := c.(*sqlConnector)
			require.True(t, ok)
			assert.Equal(t, tt.driverName, sc.driverName)
		})
	}
}

func TestSQLConnector_Connect(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1 AS X").WillReturnRows(sqlmock.NewRows([]string{"X"}).AddRow(int64(1)))
	mock.ExpectClose()

	var gotDriver string
	c := newSQLConnector("snowflake", snowflakeDSN, discardLogger())
	c.open = func(driverName, dsn string) (*sql.DB, error) {
		gotDriver = driverName
		return db, nil
	}

	session, err := c.Connect(context.Background(), snowflakeConnection())
	require.NoError(t, err)
	assert.Equal(t, "snowflake", gotDriver)

	tbl, err := session.Query(context.Background(), "SELECT 1 AS X")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, tbl.Columns)
	assert.Equal(t, [][]interface{}{{int64(1)}}, tbl.Rows)

	require.NoError(t, session.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConnector_ConnectErrors(t *testing.T) {
	t.Run("missing settings never opens", func(t *testing.T) {
		opened := false
		c := newSQLConnector("snowflake", snowflakeDSN, discardLogger())
		c.open = func(string, string) (*sql.DB, error) {
			opened = true
			return nil, nil
		}

		_, err := c.Connect(context.Background(), config.Connection{Account: "a"})
		require.ErrorIs(t, err, config.ErrMissingKey)
		assert.False(t, opened)
	})

	t.Run("open failure", func(t *testing.T) {
		c := newSQLConnector("snowflake", snowflakeDSN, discardLogger())
		c.open = func(string, string) (*sql.DB, error) {
			return nil, errors.New("bad driver")
		}

		_, err := c.Connect(context.Background(), snowflakeConnection())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad driver")
	})

	t.Run("ping failure closes the connection", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing().WillReturnError(errors.New("Incorrect username or password was specified"))
		mock.ExpectClose()

		c := newSQLConnector("snowflake", snowflakeDSN, discardLogger())
		c.open = func(string, string) (*sql.DB, error) { return db, nil }

		session, err := c.Connect(context.Background(), snowflakeConnection())
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Contains(t, err.Error(), "Incorrect username or password")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLSession_QueryWithParams(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT id, name FROM customer WHERE id = ? AND region = ?"
	mock.ExpectQuery(query).
		WithArgs(int64(123), "EMEA").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(int64(123), "alice"))

	session := NewSQLSession(db, nil, nil)
	tbl, err := session.Query(context.Background(), query, int64(123), "EMEA")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSession_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELEC").WillReturnError(errors.New("SQL compilation error"))

	session := NewSQLSession(db, nil, nil)
	_, err = session.Query(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQL compilation error")
}

func TestSQLSession_Close(t *testing.T) {
	t.Run("connection and cursor", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()

		cursor, err := db.Conn(context.Background())
		require.NoError(t, err)

		session := NewSQLSession(db, cursor, nil)
		require.NoError(t, session.Close())
		require.NoError(t, session.Close(), "second close is a no-op")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection only", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()

		session := NewSQLSession(db, nil, nil)
		assert.NoError(t, session.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("neither open", func(t *testing.T) {
		session := NewSQLSession(nil, nil, nil)
		assert.NoError(t, session.Close())

		_, err := session.Query(context.Background(), "SELECT 1")
		assert.Error(t, err)
	})

	t.Run("close error is reported", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose().WillReturnError(errors.New("network gone"))

		session := NewSQLSession(db, nil, nil)
		err = session.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network gone")
	})
}

func TestBigQueryConnector_RequiresProject(t *testing.T) {
	_, err := NewBigQueryConnector(nil).Connect(context.Background(), config.Connection{Driver: DriverBigQuery})
	assert.ErrorIs(t, err, config.ErrMissingKey)
}

func TestBigQuerySession_Closed(t *testing.T) {
	s := &BigQuerySession{}
	assert.NoError(t, s.Close())
	_, err := s.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
