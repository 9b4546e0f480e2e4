package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind identifies the loader a file is routed to.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

// KindOf returns the loader kind for a file name based on its extension.
func KindOf(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, true
	case ".txt":
		return KindText, true
	default:
		return "", false
	}
}

// ScanFolder lists the *.pdf and *.txt files directly inside dir, sorted by name.
// Subdirectories are not descended into.
func ScanFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading folder %s: %v", ErrLoad, dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := KindOf(e.Name()); !ok {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
