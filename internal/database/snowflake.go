package database

import (
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/gerhard-ee/datapull/internal/config"
)

// snowflakeKeys are the settings a Snowflake session cannot be opened without
var snowflakeKeys = []string{"account", "user", "password", "warehouse", "database", "schema", "role"}

func snowflakeConfig(conn config.Connection) (*sf.Config, error) {
	if err := conn.Require(snowflakeKeys...); err != nil {
		return nil, err
	}

	abortDetached := "true"
	return &sf.Config{
		Account:     conn.Account,
		User:        conn.User,
		Password:    conn.Password,
		Warehouse:   conn.Warehouse,
		Database:    conn.Database,
		Schema:      conn.Schema,
		Role:        conn.Role,
		Application: "datapull",
		Params: map[string]*string{
			// Cancel the running query on the server if the client goes away
			"ABORT_DETACHED_QUERY": &abortDetached,
		},
	}, nil
}

func snowflakeDSN(conn config.Connection) (string, error) {
	cfg, err := snowflakeConfig(conn)
	if err != nil {
		return "", err
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create DSN: %w", err)
	}
	return dsn, nil
}
