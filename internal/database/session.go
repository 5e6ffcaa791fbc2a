package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gerhard-ee/datapull/internal/config"
	"github.com/gerhard-ee/datapull/internal/table"
)

// dsnFunc builds a driver connection string from connection settings
type dsnFunc func(conn config.Connection) (string, error)

type sqlConnector struct {
	driverName string
	dsn        dsnFunc
	open       func(driverName, dsn string) (*sql.DB, error)
	logger     *slog.Logger
}

func newSQLConnector(driverName string, dsn dsnFunc, logger *slog.Logger) *sqlConnector {
	return &sqlConnector{
		driverName: driverName,
		dsn:        dsn,
		open:       sql.Open,
		logger:     logger,
	}
}

// Connect opens the connection, checks it with a ping, and reserves a single
// connection from the pool to run the query on.
func (c *sqlConnector) Connect(ctx context.Context, conn config.Connection) (Session, error) {
	dsn, err := c.dsn(conn)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Connecting to database", slog.String("driver", c.driverName), slog.Any("connection", conn))

	db, err := c.open(c.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cursor, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cursor: %w", err)
	}

	c.logger.Info("Successfully connected", slog.String("driver", c.driverName))
	return NewSQLSession(db, cursor, c.logger), nil
}

// SQLSession is a Session over database/sql. The *sql.DB is the connection and
// the reserved *sql.Conn plays the part of the cursor.
type SQLSession struct {
	db     *sql.DB
	cursor *sql.Conn
	logger *slog.Logger
}

// NewSQLSession wraps an open connection. cursor may be nil, in which case
// queries run on the pool.
func NewSQLSession(db *sql.DB, cursor *sql.Conn, logger *slog.Logger) *SQLSession {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLSession{db: db, cursor: cursor, logger: logger}
}

func (s *SQLSession) Query(ctx context.Context, query string, params ...interface{}) (*table.Table, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case s.cursor != nil:
		rows, err = s.cursor.QueryContext(ctx, query, params...)
	case s.db != nil:
		rows, err = s.db.QueryContext(ctx, query, params...)
	default:
		return nil, fmt.Errorf("session is closed")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return table.FromRows(rows)
}

// Close closes the cursor and then the connection. Each is released on its
// own, so a failure closing one does not leak the other.
func (s *SQLSession) Close() error {
	var errs []error

	if s.cursor != nil {
		if err := s.cursor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cursor: %w", err))
		} else {
			s.logger.Info("Cursor closed")
		}
		s.cursor = nil
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		} else {
			s.logger.Info("Connection closed")
		}
		s.db = nil
	}

	return errors.Join(errs...)
}
