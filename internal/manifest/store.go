package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/fsutil"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// StateDir is the project-relative directory holding docsync's own files.
	StateDir = ".docsync"
	// FileName is the manifest's name inside StateDir.
	FileName = "manifest.json"
)

//go:embed manifest.schema.json
var schemaJSON []byte

var schema = mustLoadSchema()

func mustLoadSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("manifest: invalid embedded schema: %v", err))
	}
	return s
}

// Path returns the manifest location for a project root.
func Path(dir string) string {
	return filepath.Join(dir, StateDir, FileName)
}

// Store reads and writes manifests.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a manifest store
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// Exists reports whether dir has a manifest file, valid or not.
func (s *Store) Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Read loads the manifest of dir. A missing, malformed or schema-invalid
// manifest yields (nil, nil) so callers fall through to adoption; only
// unexpected I/O failures are returned as errors.
func (s *Store) Read(dir string) (*Manifest, error) {
	path := Path(dir)
	data, exists, err := fsutil.ReadOptional(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !exists {
		s.logger.Debug("no manifest found", "path", path)
		return nil, nil
	}

	m, err := Decode(data)
	if err != nil {
		s.logger.Warn("ignoring unreadable manifest", "path", path, "error", err)
		return nil, nil
	}
	return m, nil
}

// Decode validates and parses a manifest document.
func Decode(data []byte) (*Manifest, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("manifest does not match schema: %s", strings.Join(msgs, "; "))
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}
	if _, err := digest.Parse(string(m.HashAlgorithm)); err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = make(map[string]FileRecord)
	}
	return &m, nil
}

// Encode renders the manifest in its stable on-disk form: two-space
// indentation, sorted keys and a trailing newline.
func Encode(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write replaces the manifest of dir atomically.
func (s *Store) Write(dir string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	path := Path(dir)
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	s.logger.Debug("manifest written", "path", path, "files", len(m.Files))
	return nil
}
