// Package export writes aggregated UserStats records to files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cam3ron2/github-stats-card/internal/stats"
)

// SnapshotFileName is the file name other tools read published records from.
const SnapshotFileName = "github-user-stats.json"

// Format selects an output encoding.
type Format string

const (
	// FormatJSON writes the published snapshot layout.
	FormatJSON Format = "json"
	// FormatXLSX writes a workbook with summary, language and calendar sheets.
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// FormatForPath infers the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatJSON
}

// Write encodes record to w in the given format.
func Write(w io.Writer, format Format, record stats.UserStats) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, record)
	case FormatXLSX:
		return WriteXLSX(w, record)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteJSON writes record as indented JSON.
func WriteJSON(w io.Writer, record stats.UserStats) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(record); err != nil {
		return fmt.Errorf("encode stats json: %w", err)
	}
	return nil
}

// WriteFile writes record to path, replacing any existing file. A directory
// path receives SnapshotFileName.
func WriteFile(path string, format Format, record stats.UserStats) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, SnapshotFileName)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Write(tmp, format, record); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move export file into place: %w", err)
	}
	return path, nil
}
