// Package journal records a summary of every applied sync run in a bbolt
// database inside the project's state directory. Holding the database open
// also holds bbolt's exclusive file lock, which keeps two sync runs from
// interleaving on the same project.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// FileName is the journal's name inside the project state directory.
const FileName = "journal.db"

// ErrLocked is returned when another process holds the journal.
var ErrLocked = errors.New("another docsync run holds the project lock")

var bucketRuns = []byte("runs")

// FileEntry is the outcome for one path in a run.
type FileEntry struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Action string `json:"action"`
	Backup string `json:"backup,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run summarizes one sync invocation.
type Run struct {
	ID          string      `json:"id"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	ToolVersion string      `json:"toolVersion"`
	Force       bool        `json:"force"`
	Adopted     bool        `json:"adopted"`
	Written     int         `json:"written"`
	Skipped     int         `json:"skipped"`
	Failed      int         `json:"failed"`
	Removed     []string    `json:"removed,omitempty"`
	Files       []FileEntry `json:"files,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Journal is an open run journal.
type Journal struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the journal at path and takes its lock,
// waiting at most timeout for a concurrent holder to release it.
func Open(path string, timeout time.Duration) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketRuns)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// OpenReadOnly opens an existing journal for reading under a shared lock.
// Readers do not exclude each other; they wait at most timeout for a
// running sync to release its exclusive lock.
func OpenReadOnly(path string, timeout time.Duration) (*Journal, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{ReadOnly: true, Timeout: timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the journal and its lock.
func (j *Journal) Close() error { return j.db.Close() }

// runKey sorts chronologically: fixed-width UTC timestamp, then the run id.
func runKey(r Run) []byte {
	return []byte(r.StartedAt.UTC().Format("20060102T150405.000000000Z") + "/" + r.ID)
}

// Record stores a run summary.
func (j *Journal) Record(r Run) error {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(runKey(r), data)
	})
}

// Recent returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (j *Journal) Recent(limit int) ([]Run, error) {
	var runs []Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt journal entry %s: %w", k, err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	return runs, err
}
