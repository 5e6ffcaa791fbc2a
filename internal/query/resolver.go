// Package query locates and reads the SQL statement a run executes.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gerhard-ee/datapull/internal/config"
)

var (
	ErrNotFound = errors.New("SQL file not found")
	ErrEmpty    = errors.New("SQL file is empty")
)

// Query is the literal statement read from a SQL file
type Query struct {
	Path string
	Text string
}

// ResolvePath returns the SQL file path for sqlQuery. An empty value selects
// the default file name; relative paths are joined to baseDir.
func ResolvePath(sqlQuery, baseDir string) string {
	if strings.TrimSpace(sqlQuery) == "" {
		sqlQuery = config.DefaultSQLQuery
	}
	if filepath.IsAbs(sqlQuery) {
		return sqlQuery
	}
	return filepath.Join(baseDir, sqlQuery)
}

// Load reads the query named by src. The text is returned verbatim but must
// contain something other than whitespace.
func Load(src config.QuerySource, baseDir string, logger *slog.Logger) (*Query, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	path := ResolvePath(src.SQLQuery, baseDir)
	logger.Debug("Reading SQL file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SQL file %s: %w", path, err)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s, provide a valid query in the SQL file", ErrEmpty, path)
	}

	return &Query{Path: path, Text: text}, nil
}

// BaseDir returns the directory holding the running executable, which is
// where relative SQL file paths are looked up.
func BaseDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
