// Command create_sample_db creates a local DuckDB database with a small
// customer table, plus a config and SQL file that point datapull at it.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/pflag"

	"github.com/gerhard-ee/datapull/internal/logger"
)

const sampleSQL = `SELECT id, name, email, region, signup_date
FROM customer
ORDER BY id
`

const createCustomer = `
	CREATE OR REPLACE TABLE customer AS
	SELECT * FROM (VALUES
		(1, 'Ada Lovelace',    'ada@example.com',    'EMEA', DATE '2023-01-15'),
		(2, 'Grace Hopper',    'grace@example.com',  'AMER', DATE '2023-02-01'),
		(3, 'Katherine, "Kay"', NULL,                'AMER', DATE '2023-03-20'),
		(4, 'Tu Youyou',       'tu@example.com',     'APAC', DATE '2023-04-02')
	) AS t(id, name, email, region, signup_date);
`

// sampleConfig escapes '%' in the path since INI values are interpolated
func sampleConfig(dbPath string) string {
	return fmt.Sprintf(`[SNOWFLAKE_SERVER]
driver = duckdb

[SNOWFLAKE_DATAPULL]
database = %s

[QUERIES]
sql_query = customer.sql
output = output.csv
format = csv
`, strings.ReplaceAll(dbPath, "%", "%%"))
}

func createSampleDB(path string) error {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(createCustomer); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// writeIfMissing leaves existing files alone
func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, os.WriteFile(path, []byte(content), 0644)
}

func main() {
	dir := pflag.StringP("dir", "d", ".", "Directory to create the sample files in")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose logging")
	pflag.Parse()

	log, closer, err := logger.NewLogger(logger.Options{Verbose: *verbose})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := os.MkdirAll(*dir, 0755); err != nil {
		logger.Fatal(log, "Failed to create directory", slog.Any("err", err))
	}

	dbPath, err := filepath.Abs(filepath.Join(*dir, "sample.duckdb"))
	if err != nil {
		logger.Fatal(log, "Failed to resolve database path", slog.Any("err", err))
	}
	if err := createSampleDB(dbPath); err != nil {
		logger.Fatal(log, "Failed to create sample database", slog.Any("err", err))
	}
	log.Info("Sample table created", slog.String("database", dbPath), slog.String("table", "customer"))

	files := map[string]string{
		filepath.Join(*dir, "config.ini"):   sampleConfig(dbPath),
		filepath.Join(*dir, "customer.sql"): sampleSQL,
	}
	for path, content := range files {
		written, err := writeIfMissing(path, content)
		if err != nil {
			logger.Fatal(log, "Failed to write sample file", slog.String("path", path), slog.Any("err", err))
		}
		if written {
			log.Info("Wrote sample file", slog.String("path", path))
		} else {
			log.Info("Kept existing file", slog.String("path", path))
		}
	}
}
