package export

import (
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/gerhard-ee/datapull/internal/table"
)

// parquetParallelism is the number of goroutines the parquet writer uses to
// encode row groups
const parquetParallelism = 4

// writeParquet stores every column as an optional UTF8 string, so nulls survive
// and no type inference is needed on the result table.
func writeParquet(path string, t *table.Table) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewCSVWriter(parquetSchema(t.Columns), fw, parquetParallelism)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range t.Rows {
		record := make([]*string, len(row))
		for i, val := range row {
			if s, ok := FormatValue(val); ok {
				record[i] = &s
			}
		}
		if err := pw.WriteString(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}

	return fw.Close()
}

// parquetSchema builds the writer metadata. Column names are reduced to
// characters the tag syntax accepts and made unique.
func parquetSchema(columns []string) []string {
	seen := make(map[string]int, len(columns))
	md := make([]string, len(columns))
	for i, col := range columns {
		name := parquetName(col)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[key]++
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL", name)
	}
	return md
}

func parquetName(col string) string {
	var b strings.Builder
	for _, r := range col {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "c_" + name
	}
	return name
}
