package database

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/datapull/internal/config"
	"github.com/gerhard-ee/datapull/internal/table"
)

// BigQueryConnector opens sessions with the BigQuery client library, which
// does not go through database/sql
type BigQueryConnector struct {
	logger *slog.Logger
}

func NewBigQueryConnector(logger *slog.Logger) *BigQueryConnector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BigQueryConnector{logger: logger}
}

func bigQueryOptions(conn config.Connection) []option.ClientOption {
	var opts []option.ClientOption
	if conn.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conn.CredentialsFile))
	}
	return opts
}

func (c *BigQueryConnector) Connect(ctx context.Context, conn config.Connection) (Session, error) {
	if err := conn.Require("project"); err != nil {
		return nil, err
	}

	c.logger.Info("Connecting to database",
		slog.String("driver", DriverBigQuery),
		slog.String("project", conn.Project),
		slog.String("location", conn.Location),
	)

	client, err := bigquery.NewClient(ctx, conn.Project, bigQueryOptions(conn)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	if conn.Location != "" {
		client.Location = conn.Location
	}

	c.logger.Info("Successfully connected", slog.String("driver", DriverBigQuery))
	return &BigQuerySession{client: client, logger: c.logger}, nil
}

// BigQuerySession runs queries as BigQuery jobs
type BigQuerySession struct {
	client *bigquery.Client
	logger *slog.Logger
}

func (s *BigQuerySession) Query(ctx context.Context, query string, params ...interface{}) (*table.Table, error) {
	if s.client == nil {
		return nil, fmt.Errorf("session is closed")
	}

	q := s.client.Query(query)
	for _, p := range params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Value: p})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var rows [][]bigquery.Value
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		rows = append(rows, row)
	}

	// The schema is only known once the first page has been fetched
	columns := make([]string, len(it.Schema))
	for i, field := range it.Schema {
		columns[i] = field.Name
	}

	t := table.New(columns...)
	for _, row := range rows {
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := t.Append(values...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *BigQuerySession) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("failed to close BigQuery client: %w", err)
	}
	s.logger.Info("Connection closed")
	return nil
}
