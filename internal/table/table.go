// Package table holds a query result in memory between execution and export.
package table

import (
	"database/sql"
	"fmt"
)

// Table is a fully materialised result set with ordered columns and rows
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

// New returns an empty table with the given columns
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row. The row must have one value per column.
func (t *Table) Append(values ...interface{}) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// FromRows drains rows into a Table. The caller still owns rows and closes it.
func FromRows(rows *sql.Rows) (*Table, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	t := New(columns...)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.Rows = append(t.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return t, nil
}
