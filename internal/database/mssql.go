package database

import (
	"net"
	"net/url"
	"strconv"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/gerhard-ee/datapull/internal/config"
)

const defaultMSSQLPort = 1433

// mssqlDSN builds a sqlserver:// URL. The schema setting is not part of the
// connection; queries qualify their tables instead.
func mssqlDSN(conn config.Connection) (string, error) {
	if err := conn.Require("host", "user", "database"); err != nil {
		return "", err
	}

	port := conn.Port
	if port == 0 {
		port = defaultMSSQLPort
	}

	q := url.Values{}
	q.Set("database", conn.Database)
	q.Set("app name", "datapull")

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conn.User, conn.Password),
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
