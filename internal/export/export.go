// Package export serialises a result table to a local file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gerhard-ee/datapull/internal/table"
)

// Supported output formats
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrRowWidth          = errors.New("row does not match the header")
)

// CheckFormat reports whether format names a supported output format. An
// empty format means CSV.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatCSV, FormatParquet:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Write serialises t to path in the given format. An existing file at path is
// replaced; the destination only appears once the write has completed.
func Write(path, format string, t *table.Table) error {
	if t == nil {
		return fmt.Errorf("no result table to export")
	}
	if path == "" {
		return fmt.Errorf("output path is required")
	}

	var write func(tmp string, t *table.Table) error
	switch strings.ToLower(format) {
	case "", FormatCSV:
		write = writeCSV
	case FormatParquet:
		write = writeParquet
	default:
		return CheckFormat(format)
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrRowWidth, i, len(row), len(t.Columns))
		}
	}

	// Create output directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := write(tmpPath, t); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set output file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// FormatValue renders one cell. The boolean is false for SQL NULL.
func FormatValue(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	case time.Time:
		return val.Format(time.RFC3339Nano), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}
