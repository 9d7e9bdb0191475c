package tables

import (
	"bufio"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Open opens a table file, decompressing ".zst" and ".gz" files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return &decodedFile{Reader: dec, close: func() error { dec.Close(); return f.Close() }}, nil
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &decodedFile{Reader: zr, close: func() error { zr.Close(); return f.Close() }}, nil
	}
	return f, nil
}

type decodedFile struct {
	io.Reader
	close func() error
}

func (d *decodedFile) Close() error { return d.close() }

// Load reads a delimited table from path. The table is named after the
// file with compression and table extensions stripped.
func Load(path string) (*Table, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()

	t, err := Read(TableName(path), rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// TableName strips directories and known extensions from path.
func TableName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".zst", ".zstd", ".gz", ".csv", ".tsv", ".txt"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Read parses a delimited table. The delimiter is detected from the header
// line: comma, tab, or runs of spaces. Comma and tab separated rows are
// decoded by the arrow CSV reader as string columns.
func Read(name string, r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	header = strings.TrimRight(header, "\r\n")
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("table %s has no header", name)
	}

	var comma rune
	switch {
	case strings.Contains(header, ","):
		comma = ','
	case strings.Contains(header, "\t"):
		comma = '\t'
	}

	var cols []string
	if comma == 0 {
		cols = strings.Fields(header)
	} else {
		hr := stdcsv.NewReader(strings.NewReader(header))
		hr.Comma = comma
		hr.LazyQuotes = true
		if cols, err = hr.Read(); err != nil {
			return nil, fmt.Errorf("failed to parse header: %w", err)
		}
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	// A leading unnamed column is a pandas index.
	if len(cols) > 0 && cols[0] == "" {
		cols[0] = "index"
	}
	t := New(name, cols)

	if comma == 0 {
		err = readFields(t, br)
	} else {
		err = readDelimited(t, br, comma)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// readDelimited appends every record of r to t. Quoted cells may hold the
// delimiter or span lines.
func readDelimited(t *Table, r io.Reader, comma rune) error {
	fields := make([]arrow.Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	cr := csv.NewReader(r, arrow.NewSchema(fields, nil),
		csv.WithComma(comma),
		csv.WithHeader(false),
		csv.WithLazyQuotes(true),
		csv.WithChunk(recordChunk),
		csv.WithAllocator(memory.NewGoAllocator()),
	)
	defer cr.Release()

	for cr.Next() {
		rec := cr.Record()
		cells := make([]*array.String, rec.NumCols())
		for j := range cells {
			cells[j] = rec.Column(j).(*array.String)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]string, len(cells))
			for j, col := range cells {
				if !col.IsNull(i) {
					row[j] = strings.Clone(col.Value(i))
				}
			}
			if err := t.Append(row); err != nil {
				return err
			}
		}
	}
	if err := cr.Err(); err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}
	return nil
}

// recordChunk is the number of rows decoded per arrow record.
const recordChunk = 4096

// readFields appends whitespace separated rows. Short rows are padded.
func readFields(t *Table, br *bufio.Reader) error {
	line := 1
	for {
		s, err := br.ReadString('\n')
		if s = strings.TrimRight(s, "\r\n"); strings.TrimSpace(s) != "" {
			line++
			if aerr := t.Append(strings.Fields(s)); aerr != nil {
				return fmt.Errorf("line %d: %w", line, aerr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
