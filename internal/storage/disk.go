package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// sqliteSidecars are written next to a database in WAL mode.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsageBytes returns the total size of the given files and directories.
// Missing paths count as zero. For a path ending in ".db" the sqlite WAL
// sidecar files are counted too.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		targets := []string{p}
		if strings.HasSuffix(p, ".db") {
			for _, suffix := range sqliteSidecars {
				targets = append(targets, p+suffix)
			}
		}
		for _, target := range targets {
			n, err := treeSize(target)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
