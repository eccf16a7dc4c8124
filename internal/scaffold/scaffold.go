// Package scaffold creates new docsync-managed sites.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/fsutil"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/templates"
)

// ErrAlreadyManaged is returned when the target already carries a manifest.
var ErrAlreadyManaged = errors.New("site is already managed by docsync")

// Result lists what Init did.
type Result struct {
	Written []string
	// Kept are existing paths left untouched.
	Kept     []string
	Manifest *manifest.Manifest
}

// Scaffolder writes fresh sites.
type Scaffolder struct {
	store       *manifest.Store
	logger      *slog.Logger
	alg         digest.Algorithm
	toolVersion string
	now         func() time.Time
}

// New creates a scaffolder that records hashes with alg.
func New(store *manifest.Store, logger *slog.Logger, alg digest.Algorithm, toolVersion string, now func() time.Time) *Scaffolder {
	if now == nil {
		now = time.Now
	}
	if alg == "" {
		alg = digest.Default
	}
	return &Scaffolder{store: store, logger: logger, alg: alg, toolVersion: toolVersion, now: now}
}

// Init creates the site for variant at root. Paths that already exist are
// never overwritten; a tool path whose content differs from the generated
// output is recorded without a hash so the next sync treats it as a local
// edit.
func (s *Scaffolder) Init(ctx context.Context, root string, variant templates.Variant, args templates.Args) (*Result, error) {
	if s.store.Exists(root) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyManaged, manifest.Path(root))
	}

	p, err := templates.ForVariant(variant)
	if err != nil {
		return nil, err
	}
	args = args.WithDefaults()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	m := manifest.New(variant, args, s.alg, s.toolVersion, s.now())
	res := &Result{Manifest: m}

	for _, rel := range p.OwnedPaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wrote, rec, err := s.place(root, rel, p, args, manifest.OwnerTool)
		if err != nil {
			return nil, err
		}
		m.Files[rel] = rec
		res.track(rel, wrote)
	}

	for _, rel := range p.ConsumerPaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wrote, _, err := s.place(root, rel, p, args, manifest.OwnerConsumer)
		if err != nil {
			return nil, err
		}
		m.Files[rel] = manifest.FileRecord{Owner: manifest.OwnerConsumer}
		res.track(rel, wrote)
	}

	if err := s.store.Write(root, m); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	s.logger.Info("site initialized",
		"root", root,
		"variant", variant,
		"project", args.ProjectName,
		"written", len(res.Written),
		"kept", len(res.Kept))

	return res, nil
}

// place writes rel unless it exists and returns the record it deserves.
func (s *Scaffolder) place(root, rel string, p templates.Provider, args templates.Args, owner manifest.Owner) (bool, manifest.FileRecord, error) {
	rec := manifest.FileRecord{Owner: owner}

	generated, err := p.Render(rel, args)
	if err != nil {
		return false, rec, fmt.Errorf("failed to render %s: %w", rel, err)
	}
	abs, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		return false, rec, err
	}

	disk, exists, err := fsutil.ReadOptional(abs)
	if err != nil {
		return false, rec, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	hash := s.alg.SumString(generated)
	if exists {
		if s.alg.Sum(disk) == hash && owner == manifest.OwnerTool {
			rec.ContentHash, rec.ToolVersion = hash, s.toolVersion
		} else if owner == manifest.OwnerTool {
			s.logger.Warn("existing file differs from template, leaving it in place", "path", rel)
		}
		return false, rec, nil
	}

	if err := fsutil.WriteFileAtomic(abs, []byte(generated), 0644); err != nil {
		return false, rec, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if owner == manifest.OwnerTool {
		rec.ContentHash, rec.ToolVersion = hash, s.toolVersion
	}
	s.logger.Debug("wrote file", "path", rel)
	return true, rec, nil
}

func (r *Result) track(rel string, wrote bool) {
	if wrote {
		r.Written = append(r.Written, rel)
	} else {
		r.Kept = append(r.Kept, rel)
	}
}
