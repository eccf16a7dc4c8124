// Package sync reconciles a scaffolded site with the current templates:
// it classifies every tool-owned file, writes what is safe to write, backs
// up forced overwrites and persists the updated manifest.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schaermu/docsync/internal/adopt"
	"github.com/schaermu/docsync/internal/content"
	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/fsutil"
	"github.com/schaermu/docsync/internal/journal"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/templates"
)

var (
	// ErrNotManaged means the target has no manifest and cannot be adopted.
	ErrNotManaged = errors.New("not a docsync-managed site")
	// ErrUnsupportedVariant means the manifest names an unknown template family.
	ErrUnsupportedVariant = errors.New("unsupported template variant")
)

// DefaultBackupDir is where forced overwrites are backed up, relative to the
// project root.
var DefaultBackupDir = filepath.Join(manifest.StateDir, "backups")

// ManifestStore loads and persists manifests.
type ManifestStore interface {
	Exists(dir string) bool
	Read(dir string) (*manifest.Manifest, error)
	Write(dir string, m *manifest.Manifest) error
}

// Recorder persists run summaries.
type Recorder interface {
	Record(run journal.Run) error
}

// Options configure an Engine for the lifetime of one invocation.
type Options struct {
	ToolVersion string
	// HashAlgorithm is used for manifests created by adoption.
	HashAlgorithm digest.Algorithm
	// Defaults are the adoption fallbacks.
	Defaults    templates.Args
	BackupDir   string
	Concurrency int
	Now         func() time.Time
	Recorder    Recorder
}

// Request selects the behaviour of a single Run.
type Request struct {
	DryRun     bool
	Force      bool
	RefreshNav bool
}

// Engine orchestrates the sync process
type Engine struct {
	store    ManifestStore
	resolver *adopt.Resolver
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates a new sync engine
func NewEngine(store ManifestStore, logger *slog.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BackupDir == "" {
		opts.BackupDir = DefaultBackupDir
	}
	if opts.HashAlgorithm == "" {
		opts.HashAlgorithm = digest.Default
	}
	return &Engine{
		store:    store,
		resolver: adopt.NewResolver(logger, opts.Defaults, opts.HashAlgorithm, opts.ToolVersion, opts.Now),
		logger:   logger,
		opts:     opts,
	}
}

// Run executes the complete sync process for the site at root. The returned
// report is non-nil whenever classification happened, even if persisting the
// manifest failed.
func (e *Engine) Run(ctx context.Context, root string, req Request) (*Report, error) {
	started := e.opts.Now().UTC()
	report := &Report{
		RunID:  uuid.NewString(),
		Root:   root,
		DryRun: req.DryRun,
		Force:  req.Force,
	}

	e.logger.Info("starting sync",
		"root", root,
		"run_id", report.RunID,
		"dry_run", req.DryRun,
		"force", req.Force)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: target directory %s does not exist", ErrNotManaged, root)
	}

	// Load previous manifest
	prev, err := e.store.Read(root)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return e.adopt(root, report, started)
	}

	provider, err := templates.ForVariant(prev.TemplateVariant)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVariant, prev.TemplateVariant)
	}
	if err := prev.Args().Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", manifest.Path(root), err)
	}

	// Build current desired state
	plan, err := NewClassifier(provider, prev.Algorithm(), e.opts.Concurrency).Classify(ctx, root, prev)
	if err != nil {
		return nil, err
	}

	e.logger.Info("sync plan",
		"variant", provider.Variant(),
		"unchanged", plan.Count(StatusUnchanged),
		"missing", plan.Count(StatusMissing),
		"new", plan.Count(StatusNew),
		"modified", plan.Count(StatusModified),
		"already_current", plan.Count(StatusAlreadyCurrent),
		"removed", len(plan.Removed))

	report.Removed = plan.Removed
	for _, path := range plan.Removed {
		e.logger.Warn("file no longer generated, leaving it in place", "path", path)
	}

	// check for dry-run mode
	if req.DryRun {
		report.Files = e.planResults(plan, req.Force)
		if req.RefreshNav {
			report.Navigation = e.planNavigation(root, provider, prev)
		}
		e.logPlanDetails(report)
		e.logger.Info("dry-run complete, no changes applied")
		return report, nil
	}

	backupRoot, err := fsutil.SafeJoin(root, filepath.ToSlash(filepath.Join(e.opts.BackupDir, backupStamp(started, report.RunID))))
	if err != nil {
		return nil, fmt.Errorf("invalid backup directory: %w", err)
	}

	// Apply plan
	report.Files = e.applyPlan(ctx, root, backupRoot, plan, req.Force)
	if req.RefreshNav {
		report.Navigation = e.refreshNavigation(root, backupRoot, provider, prev)
	}

	// Save new manifest
	next := e.buildManifest(prev, plan, report)
	if err := e.store.Write(root, next); err != nil {
		return report, fmt.Errorf("failed to save manifest: %w", err)
	}
	report.ManifestWritten = true

	e.record(report, started)

	written, skipped, failed := report.Counts()
	e.logger.Info("sync completed",
		"written", written,
		"skipped", skipped,
		"failed", failed)

	return report, nil
}

// adopt handles a site without a usable manifest. The synthesized manifest
// is persisted but no files are written in the same run.
func (e *Engine) adopt(root string, report *Report, started time.Time) (*Report, error) {
	if e.store.Exists(root) {
		e.logger.Warn("manifest is unreadable, attempting adoption", "path", manifest.Path(root))
	}

	detected, ok := adopt.Detect(root)
	if !ok {
		return nil, fmt.Errorf("%w: no manifest at %s and no known site layout", ErrNotManaged, manifest.Path(root))
	}

	res, err := e.resolver.Resolve(root, detected)
	if err != nil {
		return nil, fmt.Errorf("adoption failed: %w", err)
	}

	report.Adoption = &Adoption{
		Variant:   res.Provider.Variant(),
		Args:      res.Manifest.Args(),
		Fallbacks: res.Fallbacks,
		Files:     len(res.Manifest.Files),
	}
	for _, f := range res.Fallbacks {
		e.logger.Warn("could not infer template argument, using default", "field", f)
	}

	if report.DryRun {
		e.logger.Info("[dry-run] would adopt site", "variant", res.Provider.Variant(), "files", len(res.Manifest.Files))
		return report, nil
	}

	if err := e.store.Write(root, res.Manifest); err != nil {
		return report, fmt.Errorf("failed to save adopted manifest: %w", err)
	}
	report.ManifestWritten = true
	e.record(report, started)

	e.logger.Info("site adopted; review the manifest, then run sync again to apply template updates",
		"manifest", manifest.Path(root))
	return report, nil
}

// planResults maps a plan to the actions a real run would take.
func (e *Engine) planResults(plan *Plan, force bool) []FileResult {
	results := make([]FileResult, 0, len(plan.Files))
	for _, c := range plan.Files {
		results = append(results, FileResult{
			Path:   c.Path,
			Status: c.Status,
			Action: plannedAction(c, force),
			Err:    c.Err,
		})
	}
	return results
}

func plannedAction(c Classification, force bool) Action {
	if c.Err != nil {
		return ActionFailed
	}
	switch c.Status {
	case StatusAlreadyCurrent:
		return ActionCurrent
	case StatusModified:
		if force {
			return ActionWritten
		}
		return ActionSkipped
	default:
		return ActionWritten
	}
}

// applyPlan executes the sync plan. Failures are recorded per file and never
// stop the batch.
func (e *Engine) applyPlan(ctx context.Context, root, backupRoot string, plan *Plan, force bool) []FileResult {
	results := make([]FileResult, 0, len(plan.Files))

	for _, c := range plan.Files {
		res := FileResult{Path: c.Path, Status: c.Status, Action: plannedAction(c, force), Err: c.Err}

		if res.Action == ActionFailed {
			e.logger.Error("cannot classify file", "path", c.Path, "error", c.Err)
			results = append(results, res)
			continue
		}

		if err := ctx.Err(); err != nil && res.Action == ActionWritten {
			res.Action, res.Err = ActionFailed, err
			results = append(results, res)
			continue
		}

		switch res.Action {
		case ActionCurrent:
			e.logger.Debug("file already current", "path", c.Path)
		case ActionSkipped:
			e.logger.Warn("skipping locally modified file (use --force to overwrite)", "path", c.Path)
		case ActionWritten:
			if c.Status == StatusModified {
				backup, err := e.backupFile(root, backupRoot, c.Path)
				if err != nil {
					e.logger.Error("backup failed, not overwriting", "path", c.Path, "error", err)
					res.Action, res.Err = ActionFailed, err
					break
				}
				res.BackupPath = backup
				e.logger.Info("backed up modified file", "path", c.Path, "backup", backup)
			}
			if err := e.writeFile(root, c.Path, []byte(c.Generated)); err != nil {
				e.logger.Error("failed to write file", "path", c.Path, "error", err)
				res.Action, res.Err = ActionFailed, err
				break
			}
			e.logger.Info("wrote file", "path", c.Path, "status", c.Status)
		}

		results = append(results, res)
	}

	return results
}

// backupStamp names the per-run backup directory.
func backupStamp(started time.Time, runID string) string {
	return started.Format("20060102T150405Z") + "-" + runID[:8]
}

// backupFile copies the current disk content of rel below backupRoot. The
// copy is fsynced before this returns.
func (e *Engine) backupFile(root, backupRoot, rel string) (string, error) {
	src, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s for backup: %w", rel, err)
	}
	dst, err := fsutil.SafeJoin(backupRoot, rel)
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(dst, data, fsutil.FileMode(src, 0644)); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", dst, err)
	}
	return dst, nil
}

func (e *Engine) writeFile(root, rel string, data []byte) error {
	dst, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(dst, data, fsutil.FileMode(dst, 0644))
}

// planNavigation reports what a navigation refresh would do.
func (e *Engine) planNavigation(root string, p templates.Provider, m *manifest.Manifest) *FileResult {
	nav := p.Navigation()
	res := &FileResult{Path: nav.Path, Action: ActionWritten}

	rendered, err := e.renderNavigation(root, nav, m.DefaultPageID)
	if err != nil {
		res.Action, res.Err = ActionFailed, err
		return res
	}
	abs, err := fsutil.SafeJoin(root, nav.Path)
	if err != nil {
		res.Action, res.Err = ActionFailed, err
		return res
	}
	disk, exists, err := fsutil.ReadOptional(abs)
	switch {
	case err != nil:
		res.Action, res.Err = ActionFailed, err
	case !exists:
		res.Status = StatusMissing
	case string(disk) == rendered:
		res.Status, res.Action = StatusAlreadyCurrent, ActionCurrent
	default:
		res.Status = StatusModified
	}
	return res
}

// refreshNavigation regenerates the consumer-owned navigation file from the
// pages on disk. Existing differing content is backed up first.
func (e *Engine) refreshNavigation(root, backupRoot string, p templates.Provider, m *manifest.Manifest) *FileResult {
	res := e.planNavigation(root, p, m)
	if res.Action != ActionWritten {
		return res
	}

	nav := p.Navigation()
	if res.Status == StatusModified {
		backup, err := e.backupFile(root, backupRoot, nav.Path)
		if err != nil {
			res.Action, res.Err = ActionFailed, err
			return res
		}
		res.BackupPath = backup
	}

	rendered, err := e.renderNavigation(root, nav, m.DefaultPageID)
	if err == nil {
		err = e.writeFile(root, nav.Path, []byte(rendered))
	}
	if err != nil {
		e.logger.Error("failed to refresh navigation", "path", nav.Path, "error", err)
		res.Action, res.Err = ActionFailed, err
		return res
	}

	e.logger.Info("refreshed navigation", "path", nav.Path, "backup", res.BackupPath)
	return res
}

func (e *Engine) renderNavigation(root string, nav templates.NavigationSpec, defaultPage string) (string, error) {
	pagesDir, err := fsutil.SafeJoin(root, nav.PagesDir)
	if err != nil {
		return "", err
	}
	pages, err := content.DiscoverPages(pagesDir, nav.Extensions)
	if err != nil {
		return "", fmt.Errorf("failed to discover pages: %w", err)
	}
	return content.Build(defaultPage, pages).Render()
}

// buildManifest creates the next manifest from the applied results. Paths
// that were written or confirmed current get a fresh hash; everything else
// keeps its previous record.
func (e *Engine) buildManifest(prev *manifest.Manifest, plan *Plan, report *Report) *manifest.Manifest {
	next := prev.Clone()

	hashes := make(map[string]string, len(plan.Files))
	for _, c := range plan.Files {
		hashes[c.Path] = c.GeneratedHash
	}

	for _, res := range report.Files {
		if res.Action != ActionWritten && res.Action != ActionCurrent {
			continue
		}
		if rec, ok := next.Files[res.Path]; ok && rec.Owner == manifest.OwnerConsumer {
			continue
		}
		next.Files[res.Path] = manifest.FileRecord{
			Owner:       manifest.OwnerTool,
			ContentHash: hashes[res.Path],
			ToolVersion: e.opts.ToolVersion,
		}
	}

	if nav := report.Navigation; nav != nil && nav.Action != ActionFailed {
		if _, ok := next.Files[nav.Path]; !ok {
			next.Files[nav.Path] = manifest.FileRecord{Owner: manifest.OwnerConsumer}
		}
	}

	next.Touch(e.opts.ToolVersion, e.opts.Now())
	return next
}

// record writes the run to the journal. Journal failures are not fatal.
func (e *Engine) record(report *Report, started time.Time) {
	if e.opts.Recorder == nil {
		return
	}

	written, skipped, failed := report.Counts()
	run := journal.Run{
		ID:          report.RunID,
		StartedAt:   started,
		FinishedAt:  e.opts.Now().UTC(),
		ToolVersion: e.opts.ToolVersion,
		Force:       report.Force,
		Adopted:     report.Adoption != nil,
		Written:     written,
		Skipped:     skipped,
		Failed:      failed,
		Removed:     report.Removed,
	}
	files := report.Files
	if report.Navigation != nil {
		files = append(append([]FileResult(nil), files...), *report.Navigation)
	}
	for _, f := range files {
		entry := journal.FileEntry{Path: f.Path, Status: string(f.Status), Action: string(f.Action), Backup: f.BackupPath}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		run.Files = append(run.Files, entry)
	}

	if err := e.opts.Recorder.Record(run); err != nil {
		e.logger.Warn("failed to record run in journal", "error", err)
	}
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(report *Report) {
	for _, f := range report.Files {
		switch f.Action {
		case ActionWritten:
			e.logger.Info("[dry-run] would write", "path", f.Path, "status", f.Status, "backup", f.Status == StatusModified)
		case ActionSkipped:
			e.logger.Info("[dry-run] would skip modified file", "path", f.Path)
		case ActionFailed:
			e.logger.Info("[dry-run] cannot process", "path", f.Path, "error", f.Err)
		}
	}
	if nav := report.Navigation; nav != nil && nav.Action == ActionWritten {
		e.logger.Info("[dry-run] would refresh navigation", "path", nav.Path, "backup", nav.Status == StatusModified)
	}
}
