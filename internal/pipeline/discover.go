package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docredact/internal/raster"
)

// DiscoverDocuments lists the PDFs and images directly inside dir, sorted by name.
// Subdirectories are not searched, so a redacted output directory nested in dir is skipped.
func DiscoverDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if raster.IsPDF(path) || raster.IsImage(path) {
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}

// inferDocType takes the document type from a filename prefix such as
// "lease_agreement_03.pdf". Unknown names yield "".
func inferDocType(filename string, docTypes []string) string {
	name := strings.ToLower(filename)
	for _, t := range docTypes {
		if strings.HasPrefix(name, t) {
			return t
		}
	}
	return ""
}
