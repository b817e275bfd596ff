package rowwriter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PrefixHeaders lead every output row.
var PrefixHeaders = []string{"Domain", "Base Domain"}

// LocalHeaders are appended when meta collection is enabled.
var LocalHeaders = []string{"Local Errors", "Local Start Time", "Local End Time", "Local Duration"}

// RemoteHeaders are appended after LocalHeaders when the scanner used the
// Remote Executor and meta collection is enabled.
var RemoteHeaders = []string{"Request ID", "Log Group Name", "Log Stream Name", "Start Time", "End Time", "Memory Limit", "Measured Duration"}

// Headers composes a scanner's output header per the framework's
// PREFIX + scanner + (meta? LOCAL + (remote? REMOTE)) layout.
func Headers(scannerHeaders []string, meta, remote bool) []string {
	headers := make([]string, 0, len(PrefixHeaders)+len(scannerHeaders)+len(LocalHeaders)+len(RemoteHeaders))
	headers = append(headers, PrefixHeaders...)
	headers = append(headers, scannerHeaders...)
	if meta {
		headers = append(headers, LocalHeaders...)
		if remote {
			headers = append(headers, RemoteHeaders...)
		}
	}
	return headers
}

// Table is a per-scanner append-only output table. Concurrent domain
// tasks for the same scanner serialize their appends through mu; separate
// tables are fully independent.
type Table struct {
	mu      sync.Mutex
	path    string
	header  []string
	rows    [][]string
	sortOut bool
}

// NewTable prepares an in-memory table bound to path (creating its
// directory) and records header as its schema. It does not touch the file
// itself: the file is written once, on Close, so a run that crashes
// mid-scanner leaves no partial table behind.
func NewTable(path string, header []string, sortOut bool) (*Table, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	return &Table{
		path:    path,
		header:  header,
		sortOut: sortOut,
	}, nil
}

// WriteRow appends row to the table. len(row) must equal len(Header()).
func (t *Table) WriteRow(row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := make([]string, len(row))
	copy(cp, row)
	t.rows = append(t.rows, cp)

	return nil
}

// Header returns the table's column schema.
func (t *Table) Header() []string {
	return t.header
}

// Close writes the accumulated rows to disk, sorting lexicographically by
// the Domain column first when sortOut was requested, and atomically
// replaces any prior file at the same path.
func (t *Table) Close() error {
	t.mu.Lock()
	rows := t.rows
	t.mu.Unlock()

	if t.sortOut {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i][0] < rows[j][0]
		})
	}

	return WriteCSVAtomic(t.path, t.header, rows)
}

// WriteCSVAtomic writes header+rows to path via a temp file followed by a
// rename, so readers never observe a partially-written table.
func WriteCSVAtomic(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.csv")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// ReadCSV reads a table's header and rows back into memory, used by the
// Post-run Remote Enricher.
func ReadCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	return records[0], records[1:], nil
}
