package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		t.Helper()
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	vec := write("idx/report.vec", "12345678")
	meta := write("idx/report.meta.db", "abcd")
	write("idx/report.meta.db-wal", "xy")
	plain := write("notes.txt", "hello")

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{plain}, 5},
		{"database counts its wal sidecar", []string{meta}, 6},
		{"index artifacts", []string{vec, meta}, 14},
		{"directory is summed recursively", []string{filepath.Join(dir, "idx")}, 14},
		{"missing and empty paths count zero", []string{"", filepath.Join(dir, "absent.vec"), plain}, 5},
		{"no paths", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes(%v) = %d, want %d", tt.paths, got, tt.want)
			}
		})
	}
}
