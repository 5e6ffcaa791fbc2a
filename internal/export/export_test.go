package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/gerhard-ee/datapull/internal/table"
)

func TestWrite_CSV(t *testing.T) {
	t.Run("single value", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "output.csv")
		tbl := table.New("X")
		require.NoError(t, tbl.Append("1"))

		require.NoError(t, Write(out, FormatCSV, tbl))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "X\n1\n", string(data))
	})

	t.Run("rows and columns", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "nested", "dir", "customers.csv")
		tbl := table.New("ID", "NAME", "CITY")
		for i := 0; i < 25; i++ {
			require.NoError(t, tbl.Append(int64(i), "name", nil))
		}

		require.NoError(t, Write(out, "", tbl))

		f, err := os.Open(out)
		require.NoError(t, err)
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 26)
		assert.Equal(t, []string{"ID", "NAME", "CITY"}, records[0])
		for _, rec := range records {
			assert.Len(t, rec, 3)
		}
		assert.Equal(t, []string{"24", "name", ""}, records[25])
	})

	t.Run("quoting", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "quoted.csv")
		tbl := table.New("A", "B")
		require.NoError(t, tbl.Append("hello, world", "say \"hi\""))

		require.NoError(t, Write(out, FormatCSV, tbl))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "A,B\n\"hello, world\",\"say \"\"hi\"\"\"\n", string(data))
	})

	t.Run("empty result keeps header", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "empty.csv")
		require.NoError(t, Write(out, FormatCSV, table.New("A", "B")))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "A,B\n", string(data))
	})
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "output.csv")

	first := table.New("A")
	for i := 0; i < 10; i++ {
		require.NoError(t, first.Append(i))
	}
	require.NoError(t, Write(out, FormatCSV, first))

	second := table.New("B")
	require.NoError(t, second.Append("only"))
	require.NoError(t, Write(out, FormatCSV, second))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "B\nonly\n", string(data))

	// no temporary files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestWrite_Errors(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, Write(filepath.Join(dir, "a.csv"), FormatCSV, nil))
	assert.Error(t, Write("", FormatCSV, table.New("A")))

	err := Write(filepath.Join(dir, "a.xlsx"), "xlsx", table.New("A"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, statErr := os.Stat(filepath.Join(dir, "a.xlsx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWrite_RowWidthMismatch(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatParquet} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out."+format)

			wide := table.New("A")
			wide.Rows = [][]interface{}{{"1"}, {"2", "extra"}}
			assert.ErrorIs(t, Write(out, format, wide), ErrRowWidth)

			narrow := table.New("A", "B")
			narrow.Rows = [][]interface{}{{"1", "2"}, {"3"}}
			assert.ErrorIs(t, Write(out, format, narrow), ErrRowWidth)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing is written for a malformed table")
		})
	}
}

func TestCheckFormat(t *testing.T) {
	for _, f := range []string{"", "csv", "CSV", "parquet"} {
		assert.NoError(t, CheckFormat(f), f)
	}
	assert.ErrorIs(t, CheckFormat("json"), ErrUnsupportedFormat)
}

func TestWrite_Parquet(t *testing.T) {
	out := filepath.Join(t.TempDir(), "customers.parquet")
	tbl := table.New("ID", "FULL NAME", "id", "2nd")
	for i := 0; i < 100; i++ {
		require.NoError(t, tbl.Append(int64(i), "Test User", nil, 1.5))
	}

	require.NoError(t, Write(out, FormatParquet, tbl))

	fr, err := local.NewLocalFileReader(out)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.Equal(t, int64(100), pr.GetNumRows())

	cells := parquetCells(t, out)
	require.Len(t, cells, 100)
	require.NotNil(t, cells[7][0])
	assert.Equal(t, "7", *cells[7][0])
	assert.Equal(t, "Test User", *cells[7][1])
	assert.Nil(t, cells[7][2], "NULL must stay NULL")
	assert.Equal(t, "1.5", *cells[7][3])
	// root element plus one per column
	assert.Len(t, pr.SchemaHandler.SchemaElements, 5)
}

// parquetCells reads every row back as strings, nil for NULL
func parquetCells(t *testing.T, path string) [][]*string {
	t.Helper()

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows, err := pr.ReadByNumber(int(pr.GetNumRows()))
	require.NoError(t, err)

	cells := make([][]*string, len(rows))
	for i, row := range rows {
		v := reflect.ValueOf(row)
		cells[i] = make([]*string, v.NumField())
		for j := 0; j < v.NumField(); j++ {
			f := v.Field(j)
			require.Equal(t, reflect.Ptr, f.Kind(), "column %d is not optional", j)
			if !f.IsNil() {
				s := f.Elem().String()
				cells[i][j] = &s
			}
		}
	}
	return cells
}

func TestWrite_ParquetNulls(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nulls.parquet")
	tbl := table.New("A", "B")
	require.NoError(t, tbl.Append("x", nil))
	require.NoError(t, tbl.Append(nil, "y"))
	require.NoError(t, tbl.Append(nil, nil))

	require.NoError(t, Write(out, FormatParquet, tbl))

	cells := parquetCells(t, out)
	require.Len(t, cells, 3)

	require.NotNil(t, cells[0][0])
	assert.Equal(t, "x", *cells[0][0])
	assert.Nil(t, cells[0][1])

	assert.Nil(t, cells[1][0])
	require.NotNil(t, cells[1][1])
	assert.Equal(t, "y", *cells[1][1])

	assert.Nil(t, cells[2][0])
	assert.Nil(t, cells[2][1])
}

func TestParquetSchema(t *testing.T) {
	md := parquetSchema([]string{"ID", "full name", "id", "", "1st"})
	require.Len(t, md, 5)
	assert.True(t, strings.HasPrefix(md[0], "name=ID,"))
	assert.True(t, strings.HasPrefix(md[1], "name=full_name,"))
	assert.True(t, strings.HasPrefix(md[2], "name=id_2,"))
	assert.True(t, strings.HasPrefix(md[3], "name=column_4,"))
	assert.True(t, strings.HasPrefix(md[4], "name=c_1st,"))
	for _, tag := range md {
		assert.Contains(t, tag, "repetitiontype=OPTIONAL")
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name   string
		in     interface{}
		want   string
		wantOK bool
	}{
		{name: "nil", in: nil, want: "", wantOK: false},
		{name: "string", in: "abc", want: "abc", wantOK: true},
		{name: "bytes", in: []byte("raw"), want: "raw", wantOK: true},
		{name: "int", in: int64(42), want: "42", wantOK: true},
		{name: "float", in: 1.25, want: "1.25", wantOK: true},
		{name: "whole float", in: 3.0, want: "3", wantOK: true},
		{name: "bool", in: true, want: "true", wantOK: true},
		{name: "time", in: ts, want: "2024-03-01T12:30:00.0000005Z", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatValue(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
