package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/gerhard-ee/datapull/internal/table"
)

func writeCSV(path string, t *table.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, val := range row {
			record[i], _ = FormatValue(val)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return file.Close()
}
