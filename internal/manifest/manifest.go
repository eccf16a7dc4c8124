// Package manifest persists the record of every file docsync manages in a
// project: who owns it and the hash of the content the tool last wrote.
package manifest

import (
	"sort"
	"time"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/templates"
)

// Owner decides whether the engine may regenerate a file.
type Owner string

const (
	// OwnerTool files are regenerated on every sync.
	OwnerTool Owner = "tool"
	// OwnerConsumer files are written once and never touched again.
	OwnerConsumer Owner = "consumer"
)

// FileRecord tracks a single managed path.
type FileRecord struct {
	Owner       Owner  `json:"owner"`
	ContentHash string `json:"contentHash,omitempty"`
	ToolVersion string `json:"toolVersion,omitempty"`
}

// TrustedHash returns the hash the classifier may compare against. Consumer
// records never yield one.
func (r FileRecord) TrustedHash() (string, bool) {
	if r.Owner != OwnerTool || r.ContentHash == "" {
		return "", false
	}
	return r.ContentHash, true
}

// Manifest is the persisted per-project record.
type Manifest struct {
	ToolVersion     string                `json:"toolVersion"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	TemplateVariant templates.Variant     `json:"templateVariant"`
	ThemeName       string                `json:"themeName"`
	ProjectName     string                `json:"projectName"`
	DefaultPageID   string                `json:"defaultPageId"`
	HashAlgorithm   digest.Algorithm      `json:"hashAlgorithm,omitempty"`
	Files           map[string]FileRecord `json:"files"`
}

// New creates an empty manifest for a freshly generated site.
func New(variant templates.Variant, args templates.Args, alg digest.Algorithm, toolVersion string, now time.Time) *Manifest {
	now = now.UTC()
	return &Manifest{
		ToolVersion:     toolVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
		TemplateVariant: variant,
		ThemeName:       args.ThemeName,
		ProjectName:     args.ProjectName,
		DefaultPageID:   args.DefaultPageID,
		HashAlgorithm:   alg,
		Files:           make(map[string]FileRecord),
	}
}

// Args returns the template arguments recorded in the manifest.
func (m *Manifest) Args() templates.Args {
	return templates.Args{
		ProjectName:   m.ProjectName,
		ThemeName:     m.ThemeName,
		DefaultPageID: m.DefaultPageID,
	}
}

// Algorithm returns the hash algorithm the recorded hashes were computed with.
func (m *Manifest) Algorithm() digest.Algorithm {
	if m.HashAlgorithm == "" {
		return digest.Default
	}
	return m.HashAlgorithm
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Files = make(map[string]FileRecord, len(m.Files))
	for path, rec := range m.Files {
		c.Files[path] = rec
	}
	return &c
}

// ToolPaths returns the sorted paths of all tool-owned records.
func (m *Manifest) ToolPaths() []string {
	var out []string
	for path, rec := range m.Files {
		if rec.Owner == OwnerTool {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Touch bumps the audit fields after a sync.
func (m *Manifest) Touch(toolVersion string, now time.Time) {
	m.ToolVersion = toolVersion
	m.UpdatedAt = now.UTC()
}
