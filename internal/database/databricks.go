package database

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/databricks/databricks-sql-go"

	"github.com/gerhard-ee/datapull/internal/config"
)

const defaultDatabricksPort = 443

// databricksDSN maps the connection settings onto a Databricks SQL warehouse:
// password holds the access token, warehouse the HTTP path of the warehouse,
// database the catalog.
func databricksDSN(conn config.Connection) (string, error) {
	if err := conn.Require("host", "password", "warehouse"); err != nil {
		return "", err
	}

	port := conn.Port
	if port == 0 {
		port = defaultDatabricksPort
	}

	httpPath := conn.Warehouse
	if !strings.HasPrefix(httpPath, "/") {
		httpPath = "/" + httpPath
	}

	q := url.Values{}
	if conn.Database != "" {
		q.Set("catalog", conn.Database)
	}
	if conn.Schema != "" {
		q.Set("schema", conn.Schema)
	}

	dsn := fmt.Sprintf("token:%s@%s:%d%s", url.QueryEscape(conn.Password), conn.Host, port, httpPath)
	if len(q) > 0 {
		dsn += "?" + q.Encode()
	}
	return dsn, nil
}
