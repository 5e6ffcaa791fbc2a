package database

import (
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/gerhard-ee/datapull/internal/config"
)

const defaultPostgresPort = 5432

func postgresDSN(conn config.Connection) (string, error) {
	if err := conn.Require("host", "user", "database"); err != nil {
		return "", err
	}

	port := conn.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(conn.User, conn.Password),
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		Path:   "/" + conn.Database,
	}

	q := url.Values{}
	if conn.Schema != "" {
		q.Set("search_path", conn.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
