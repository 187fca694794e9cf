// Package output writes run artifacts to disk and reads snapshots back.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/pricewatch/internal/config"
	"github.com/everstacklabs/pricewatch/internal/openrouter"
	"github.com/everstacklabs/pricewatch/internal/pipeline"
	"github.com/everstacklabs/pricewatch/internal/snapshot"
)

const snapshotSuffix = "-provider-pricing"

// SummaryFile is the run summary file name for a format.
func SummaryFile(format string) string {
	return openrouter.Source + ".raw." + ext(format)
}

// SnapshotFile is the snapshot file name for a provider and format.
func SnapshotFile(provider, format string) string {
	return provider + snapshotSuffix + "." + ext(format)
}

func ext(format string) string {
	if format == config.FormatYAML {
		return "yaml"
	}
	return "json"
}

// Writer is a pipeline.Sink that writes one file per artifact into dir.
type Writer struct {
	dir    string
	format string
}

var _ pipeline.Sink = (*Writer)(nil)

// NewWriter creates a Writer. An empty format means JSON.
func NewWriter(dir, format string) *Writer {
	if format == "" {
		format = config.FormatJSON
	}
	return &Writer{dir: dir, format: format}
}

// WriteSummary writes the run summary and returns its path.
func (w *Writer) WriteSummary(s *pipeline.RunSummary) (string, error) {
	return w.write(SummaryFile(w.format), s)
}

// WriteSnapshot writes one provider snapshot and returns its path.
func (w *Writer) WriteSnapshot(s *snapshot.ProviderSnapshot) (string, error) {
	return w.write(SnapshotFile(s.ProviderName, w.format), s)
}

func (w *Writer) write(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	data, err := encode(w.format, v)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func encode(format string, v any) ([]byte, error) {
	if format == config.FormatYAML {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ReadSnapshot loads a snapshot file. The format follows the file extension.
func ReadSnapshot(path string) (*snapshot.ProviderSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var s snapshot.ProviderSnapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &s, nil
}

// LoadSnapshot reads the snapshot for one provider from dir. A missing file
// yields an error matching os.ErrNotExist.
func LoadSnapshot(dir, provider, format string) (*snapshot.ProviderSnapshot, error) {
	return ReadSnapshot(filepath.Join(dir, SnapshotFile(provider, format)))
}

// SnapshotPaths lists every snapshot file in dir, sorted by name.
func SnapshotPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		base := strings.TrimSuffix(name, filepath.Ext(name))
		switch filepath.Ext(name) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		if strings.HasSuffix(base, snapshotSuffix) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	slices.Sort(paths)
	return paths, nil
}
