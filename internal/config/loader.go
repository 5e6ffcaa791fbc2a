package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/ini.v1"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. DATAPULL_CONNECTION_PASSWORD or DATAPULL_QUERIES_SQL_QUERY.
const EnvPrefix = "DATAPULL_"

// sections maps a section name to its key/value pairs
type sections map[string]map[string]string

// Load reads the configuration file at path.
// Precedence (highest to lowest): env vars > SNOWFLAKE_DATAPULL > SNOWFLAKE_SERVER > defaults
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	logger.Info("Looking for config file", slog.String("path", absPath))

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, absPath)
		}
		return nil, fmt.Errorf("failed to stat config file %s: %w", absPath, err)
	}

	secs, names, err := readSections(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Sections found in config file", slog.Any("sections", names))

	server, hasServer := secs[SectionServer]
	pull, hasPull := secs[SectionDataPull]
	if !hasServer || !hasPull {
		return nil, fmt.Errorf("%w: [%s] and [%s] must both be present in %s",
			ErrMissingSections, SectionServer, SectionDataPull, absPath)
	}

	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"connection.driver": DefaultDriver,
		"queries.sql_query": DefaultSQLQuery,
		"queries.output":    DefaultOutput,
		"queries.format":    DefaultFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. File sections, SNOWFLAKE_DATAPULL wins over SNOWFLAKE_SERVER
	flat := make(map[string]interface{})
	for _, sec := range []map[string]string{server, pull} {
		for key, val := range sec {
			flat["connection."+key] = val
		}
	}
	for key, val := range secs[SectionQueries] {
		flat["queries."+key] = val
	}
	if err := k.Load(confmap.Provider(flat, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config sections: %w", err)
	}

	// 3. Environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	cfg := &Config{Path: absPath}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Connection.Driver = strings.ToLower(strings.TrimSpace(cfg.Connection.Driver))
	cfg.Queries.Format = strings.ToLower(strings.TrimSpace(cfg.Queries.Format))

	return cfg, nil
}

// envKey maps DATAPULL_CONNECTION_USER to connection.user. Variables outside
// the connection and queries groups are ignored.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, group := range []string{"connection_", "queries_"} {
		if strings.HasPrefix(key, group) && len(key) > len(group) {
			return strings.TrimSuffix(group, "_") + "." + key[len(group):]
		}
	}
	return ""
}

func readSections(path string) (sections, []string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return readYAMLSections(path)
	default:
		return readINISections(path)
	}
}

// readINISections parses a configparser-style file. Keys are case-insensitive,
// section names are not, DEFAULT values are inherited by every section, and
// %-interpolation is applied.
func readINISections(path string) (sections, []string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	defaults := f.Section(ini.DefaultSection).KeysHash()

	secs := make(sections)
	var names []string
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		values := make(map[string]string, len(defaults))
		for k, v := range defaults {
			values[k] = v
		}
		for k, v := range sec.KeysHash() {
			values[k] = v
		}
		expanded, err := interpolate(values)
		if err != nil {
			return nil, nil, fmt.Errorf("section [%s] in %s: %w", sec.Name(), path, err)
		}
		secs[sec.Name()] = expanded
		names = append(names, sec.Name())
	}
	return secs, names, nil
}

func readYAMLSections(path string) (sections, []string, error) {
	y := koanf.New(".")
	if err := y.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	secs := make(sections)
	var names []string
	for name, raw := range y.Raw() {
		body, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		values := make(map[string]string, len(body))
		for k, v := range body {
			if v == nil {
				continue
			}
			values[strings.ToLower(k)] = fmt.Sprint(v)
		}
		secs[name] = values
		names = append(names, name)
	}
	return secs, names, nil
}
