package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrUnknownColumn is returned when an operation names a column that is not in
// the table header.
var ErrUnknownColumn = errors.New("store: unknown column")

// Row is one record keyed by column name. Values are copies; mutating a Row
// does not touch the underlying file.
type Row map[string]string

// Table is a CSV-backed table: one header row plus data rows. Every mutation
// rewrites the whole file synchronously. The embedded mutex is the single
// serialization point for the file; the scan coordinator and live dialog
// handlers both go through it.
type Table struct {
	path string
	mu   sync.Mutex
}

// Open returns a Table for an existing CSV file.
func Open(path string) (*Table, error) {
	if !strings.HasSuffix(path, ".csv") {
		return nil, fmt.Errorf("store: %s is not a csv file", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Table{path: path}, nil
}

// Create opens the CSV file at path, creating it with the given header when it
// does not exist yet. Used for the registration table, which starts empty.
func Create(path string, header []string) (*Table, error) {
	if !strings.HasSuffix(path, ".csv") {
		return nil, fmt.Errorf("store: %s is not a csv file", path)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("store: create %s: %w", path, err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("store: write header %s: %w", path, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("store: write header %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}
	return Open(path)
}

// Path returns the backing file path.
func (t *Table) Path() string {
	return t.path
}

// ValueExists reports whether any row holds value in the named column.
func (t *Table) ValueExists(value, column string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return false, err
	}
	idx, err := columnIndex(header, column)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row[idx] == value {
			return true, nil
		}
	}
	return false, nil
}

// Append adds a record. Columns absent from the row are written empty. The
// store does not enforce uniqueness; callers must check existence first.
func (t *Table) Append(row Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, col := range header {
		record[i] = row[col]
	}
	rows = append(rows, record)
	return t.save(header, rows)
}

// FindAndReplace overwrites targetColumn in the first row where matchColumn
// equals matchValue and persists the table. Returns false without error when
// no row matches.
func (t *Table) FindAndReplace(matchColumn, matchValue, targetColumn, newValue string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return false, err
	}
	matchIdx, err := columnIndex(header, matchColumn)
	if err != nil {
		return false, err
	}
	targetIdx, err := columnIndex(header, targetColumn)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row[matchIdx] == matchValue {
			row[targetIdx] = newValue
			return true, t.save(header, rows)
		}
	}
	return false, nil
}

// GetByKey returns resultColumn of the first row where keyColumn equals
// keyValue. The second return is false when no row matches.
func (t *Table) GetByKey(keyColumn, keyValue, resultColumn string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return "", false, err
	}
	keyIdx, err := columnIndex(header, keyColumn)
	if err != nil {
		return "", false, err
	}
	resultIdx, err := columnIndex(header, resultColumn)
	if err != nil {
		return "", false, err
	}
	for _, row := range rows {
		if row[keyIdx] == keyValue {
			return row[resultIdx], true, nil
		}
	}
	return "", false, nil
}

// CreateColumn appends an empty column to the table and persists it. No-op if
// the column already exists.
func (t *Table) CreateColumn(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return err
	}
	for _, col := range header {
		if col == name {
			return nil
		}
	}
	header = append(header, name)
	for i := range rows {
		rows[i] = append(rows[i], "")
	}
	return t.save(header, rows)
}

// Rows returns a snapshot of all data rows keyed by column name.
func (t *Table) Rows() ([]Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, rows, err := t.load()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		r := make(Row, len(header))
		for i, col := range header {
			r[col] = row[i]
		}
		out = append(out, r)
	}
	return out, nil
}

// Len returns the number of data rows.
func (t *Table) Len() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, rows, err := t.load()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// load reads the whole file. Rows shorter than the header are padded so column
// indexing stays safe.
func (t *Table) load() (header []string, rows [][]string, err error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open %s: %w", t.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("store: read %s: %w", t.path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("store: %s has no header row", t.path)
	}
	header = records[0]
	rows = records[1:]
	for i, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows[i] = row[:len(header)]
	}
	return header, rows, nil
}

// save rewrites the whole file.
func (t *Table) save(header []string, rows [][]string) error {
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: write %s: %w", t.path, err)
	}
	return nil
}

func columnIndex(header []string, column string) (int, error) {
	for i, col := range header {
		if col == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
}
