package mods

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const jarExt = ".jar"

// Ledger is the comma-joined record of installed mod IDs (mods.txt).
type Ledger struct {
	path string
}

func NewLedger(path string) Ledger { return Ledger{path: path} }

// Read returns the recorded IDs. A missing ledger is an empty set.
func (l Ledger) Read() ([]string, error) {
	b, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mod ledger: %w", err)
	}
	return parseLedger(string(b)), nil
}

// Write replaces the ledger with ids.
func (l Ledger) Write(ids []string) error {
	if err := os.WriteFile(l.path, []byte(strings.Join(ids, ",")), 0o640); err != nil {
		return fmt.Errorf("write mod ledger: %w", err)
	}
	return nil
}

func parseLedger(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Scan lists the mod IDs present in dir as .jar files, sorted. Other files
// and directories are ignored; a missing dir is empty.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan mods: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), jarExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	slices.Sort(ids)
	return ids, nil
}
