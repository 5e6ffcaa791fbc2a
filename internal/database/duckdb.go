package database

import (
	_ "github.com/marcboeker/go-duckdb"

	"github.com/gerhard-ee/datapull/internal/config"
)

// duckdbDSN treats the database setting as a file path. An empty database
// opens an in-memory instance.
func duckdbDSN(conn config.Connection) (string, error) {
	return conn.Database, nil
}
