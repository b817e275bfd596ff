package rowwriter

import (
	"path/filepath"
	"testing"
)

func TestHeaders(t *testing.T) {
	tests := []struct {
		name     string
		meta     bool
		remote   bool
		expected int
	}{
		{"no_meta", false, false, len(PrefixHeaders) + 2},
		{"meta_local_only", true, false, len(PrefixHeaders) + 2 + len(LocalHeaders)},
		{"meta_local_and_remote", true, true, len(PrefixHeaders) + 2 + len(LocalHeaders) + len(RemoteHeaders)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := Headers([]string{"A", "B"}, tt.meta, tt.remote)
			if len(headers) != tt.expected {
				t.Errorf("found %d headers, want %d", len(headers), tt.expected)
			}
		})
	}
}

func TestTable_WriteRowAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.csv")

	table, err := NewTable(path, Headers([]string{"SPF"}, false, false), false)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	if err := table.WriteRow([]string{"example.com", "example.com", "v=spf1 -all"}); err != nil {
		t.Fatalf("write row: %v", err)
	}
	if err := table.WriteRow([]string{"a.example.com", "example.com", ""}); err != nil {
		t.Fatalf("write row: %v", err)
	}

	if err := table.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	header, rows, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	if len(header) != 3 {
		t.Errorf("found %d header columns, want 3", len(header))
	}
	if len(rows) != 2 {
		t.Fatalf("found %d rows, want 2", len(rows))
	}
	if rows[0][0] != "example.com" {
		t.Errorf("found %v, want unsorted insertion order preserved", rows)
	}
}

func TestTable_Sorted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns.csv")

	table, err := NewTable(path, Headers([]string{"SPF"}, false, false), true)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	_ = table.WriteRow([]string{"zebra.com", "zebra.com", ""})
	_ = table.WriteRow([]string{"alpha.com", "alpha.com", ""})

	if err := table.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, rows, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	if rows[0][0] != "alpha.com" || rows[1][0] != "zebra.com" {
		t.Errorf("found %v, want sorted by domain", rows)
	}
}

func TestReadCSV_MissingFile(t *testing.T) {
	if _, _, err := ReadCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected an error reading a table that was never written")
	}
}
