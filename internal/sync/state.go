package sync

import (
	"github.com/schaermu/docsync/internal/templates"
)

// Status is the three-way classification of a tool-owned path.
type Status string

const (
	// StatusUnchanged: disk still holds exactly what the tool last wrote.
	StatusUnchanged Status = "unchanged"
	// StatusModified: disk diverges from both the generated content and the
	// last recorded write, i.e. a user edit.
	StatusModified Status = "modified"
	// StatusMissing: the file does not exist on disk.
	StatusMissing Status = "missing"
	// StatusNew: the manifest has never recorded this path.
	StatusNew Status = "new"
	// StatusAlreadyCurrent: disk already matches the generated content.
	StatusAlreadyCurrent Status = "already-current"
)

// Classification is the per-file decision input for one sync run. It is
// never persisted.
type Classification struct {
	Path          string
	Status        Status
	Generated     string
	GeneratedHash string
	DiskHash      string // empty when the file is missing
	ManifestHash  string // empty when no trusted hash is recorded
	Err           error  // read or render failure; Status is empty
}

// Plan is the classifier's output.
type Plan struct {
	Files []Classification
	// Removed lists tool-owned manifest paths the provider no longer generates.
	Removed []string
}

// Count returns how many classifications have status s.
func (p *Plan) Count(s Status) int {
	n := 0
	for _, c := range p.Files {
		if c.Err == nil && c.Status == s {
			n++
		}
	}
	return n
}

// Action is what the executor did (or, in a dry run, would do) with a file.
type Action string

const (
	ActionWritten Action = "written"
	ActionCurrent Action = "current"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// FileResult is the outcome for a single path.
type FileResult struct {
	Path       string
	Status     Status
	Action     Action
	BackupPath string
	Err        error
}

// Adoption describes a manifest synthesized for an unmanaged site.
type Adoption struct {
	Variant   templates.Variant
	Args      templates.Args
	Fallbacks []templates.Field
	Files     int
}

// Report summarizes a sync run for the caller.
type Report struct {
	RunID           string
	Root            string
	DryRun          bool
	Force           bool
	Adoption        *Adoption
	Files           []FileResult
	Removed         []string
	Navigation      *FileResult
	ManifestWritten bool
}

// Counts tallies file results by action.
func (r *Report) Counts() (written, skipped, failed int) {
	results := r.Files
	if r.Navigation != nil {
		results = append(append([]FileResult(nil), results...), *r.Navigation)
	}
	for _, f := range results {
		switch f.Action {
		case ActionWritten:
			written++
		case ActionSkipped:
			skipped++
		case ActionFailed:
			failed++
		}
	}
	return written, skipped, failed
}

// HasFailures reports whether any file failed.
func (r *Report) HasFailures() bool {
	_, _, failed := r.Counts()
	return failed > 0
}

// Result returns the outcome for path, if any.
func (r *Report) Result(path string) (FileResult, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileResult{}, false
}
