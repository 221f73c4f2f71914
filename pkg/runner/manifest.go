package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// ManifestPath derives the manifest location from the stream path:
// "out/corpus.txt" becomes "out/corpus.manifest.json".
func ManifestPath(streamPath string) string {
	ext := filepath.Ext(streamPath)
	return strings.TrimSuffix(streamPath, ext) + ".manifest.json"
}

// WriteManifest encodes m as indented JSON followed by a newline.
func WriteManifest(w io.Writer, m *types.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: writing manifest: %w", types.ErrOutputWrite, err)
	}
	return nil
}

// SaveManifest writes m to path.
func SaveManifest(path string, m *types.RunManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating manifest: %w", types.ErrOutputWrite, err)
	}
	if err := WriteManifest(f, m); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing manifest: %w", types.ErrOutputWrite, err)
	}
	return nil
}

// LoadManifest reads a manifest written by SaveManifest.
func LoadManifest(path string) (*types.RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: manifest %s", types.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("%w: manifest %s: %w", types.ErrInputNotReadable, path, err)
	}
	m := types.NewRunManifest("")
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %w", types.ErrInputNotReadable, path, err)
	}
	return m, nil
}
