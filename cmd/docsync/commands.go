package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schaermu/docsync/internal/adopt"
	"github.com/schaermu/docsync/internal/config"
	"github.com/schaermu/docsync/internal/journal"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/project"
	"github.com/schaermu/docsync/internal/scaffold"
	"github.com/schaermu/docsync/internal/sync"
	"github.com/schaermu/docsync/internal/templates"
)

var (
	// init flags
	initVariant     string
	initProjectName string
	initTheme       string
	initDefaultPage string

	// sync flags
	dryRun     bool
	force      bool
	refreshNav bool

	// history flags
	historyLimit int
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a new documentation site",
	Long: `Init writes every template file into dir (default: the current directory)
and records them in .docsync/manifest.json. Existing files are never
overwritten; tool files that already differ from the template are recorded as
locally modified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var syncCmd = &cobra.Command{
	Use:   "sync [dir]",
	Short: "Re-apply the current templates to a site",
	Long: `Sync regenerates every tool-owned file and compares it with the disk content
and the hash recorded when docsync last wrote it.

Files that still hold docsync's last output are updated. Files edited by hand
are skipped unless --force is given; forced overwrites are backed up under
.docsync/backups first. A site without a manifest is adopted: a manifest is
synthesized from the current files and no other file is changed in that run.

Without dir, the site root is searched upwards from the working directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status [dir]",
	Short: "Show how each tool-owned file would be treated by sync",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history [dir]",
	Short: "List recorded sync runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	initCmd.Flags().StringVar(&initVariant, "variant", string(templates.Astro), "template variant (astro, next)")
	initCmd.Flags().StringVar(&initProjectName, "project-name", "", "project name shown in the site header")
	initCmd.Flags().StringVar(&initTheme, "theme", "", "colour theme (ocean, forest, sunset, slate, violet)")
	initCmd.Flags().StringVar(&initDefaultPage, "default-page", "", "id of the page the site opens with")

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVar(&force, "force", false, "overwrite locally modified files after backing them up")
	syncCmd.Flags().BoolVar(&refreshNav, "refresh-nav", false, "regenerate the navigation file from the pages on disk")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show (0 for all)")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, cfg, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tmplArgs := cfg.TemplateDefaults()
	if initProjectName != "" {
		tmplArgs.ProjectName = initProjectName
	}
	if initTheme != "" {
		tmplArgs.ThemeName = initTheme
	}
	if initDefaultPage != "" {
		tmplArgs.DefaultPageID = initDefaultPage
	}

	s := scaffold.New(manifest.NewStore(logger), logger, cfg.HashAlgorithm(), version, nil)
	res, err := s.Init(ctx, root, templates.Variant(initVariant), tmplArgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Initialized %s site in %s: %d file(s) written\n", initVariant, root, len(res.Written))
	for _, path := range res.Kept {
		_, _ = fmt.Fprintf(out, "  kept existing %s\n", path)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, cfg, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	req := sync.Request{DryRun: dryRun, Force: force, RefreshNav: refreshNav}
	return syncSite(ctx, cmd.OutOrStdout(), logger, cfg, root, req)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger, cfg, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(manifest.NewStore(logger), logger, engineOptions(cfg))
	report, err := engine.Run(ctx, root, sync.Request{DryRun: true})
	if err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), report)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, cfg, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := journalPath(root)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	j, err := journal.OpenReadOnly(path, cfg.Sync.LockTimeout)
	if errors.Is(err, journal.ErrLocked) {
		return fmt.Errorf("%w: a sync is still running on %s, try again when it finishes", err, root)
	}
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	runs, err := j.Recent(historyLimit)
	if err != nil {
		return err
	}
	printHistory(out, runs)
	return nil
}

// syncSite runs one sync and prints its report. Non-dry runs hold the
// journal lock for their whole duration.
func syncSite(ctx context.Context, out io.Writer, logger *slog.Logger, cfg *config.Config, root string, req sync.Request) error {
	store := manifest.NewStore(logger)
	opts := engineOptions(cfg)

	if !req.DryRun && syncable(store, root) {
		j, err := openJournal(root, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()
		if cfg.JournalEnabled() {
			opts.Recorder = j
		}
	}

	report, err := sync.NewEngine(store, logger, opts).Run(ctx, root, req)
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}

	if report.HasFailures() {
		_, _, failed := report.Counts()
		return fmt.Errorf("%d file(s) could not be synced", failed)
	}
	return nil
}

func engineOptions(cfg *config.Config) sync.Options {
	return sync.Options{
		ToolVersion:   version,
		HashAlgorithm: cfg.HashAlgorithm(),
		Defaults:      cfg.TemplateDefaults(),
	}
}

// syncable reports whether root is managed or adoptable. The journal is only
// created inside such directories.
func syncable(store *manifest.Store, root string) bool {
	if store.Exists(root) {
		return true
	}
	_, ok := adopt.Detect(root)
	return ok
}

func journalPath(root string) string {
	return filepath.Join(root, manifest.StateDir, journal.FileName)
}

func openJournal(root string, cfg *config.Config) (*journal.Journal, error) {
	j, err := journal.Open(journalPath(root), cfg.Sync.LockTimeout)
	if errors.Is(err, journal.ErrLocked) {
		return nil, fmt.Errorf("%w: another docsync run is working on %s", err, root)
	}
	return j, err
}

func resolveRoot(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	return project.FindRoot(".")
}

func printReport(out io.Writer, r *sync.Report) {
	if a := r.Adoption; a != nil {
		verb := "Adopted"
		if r.DryRun {
			verb = "Would adopt"
		}
		_, _ = fmt.Fprintf(out, "%s %s site (project %q, theme %s, default page %s): %d file(s) recorded\n",
			verb, a.Variant, a.Args.ProjectName, a.Args.ThemeName, a.Args.DefaultPageID, a.Files)
		if len(a.Fallbacks) > 0 {
			names := make([]string, len(a.Fallbacks))
			for i, f := range a.Fallbacks {
				names[i] = string(f)
			}
			_, _ = fmt.Fprintf(out, "  could not infer %s; defaults used\n", strings.Join(names, ", "))
		}
		if !r.DryRun {
			_, _ = fmt.Fprintf(out, "Review %s, then run sync again to apply template updates.\n", manifest.Path(r.Root))
		}
		return
	}

	if r.DryRun {
		_, _ = fmt.Fprintln(out, "Dry run: no changes applied.")
	}

	current := 0
	for _, f := range r.Files {
		if f.Action == sync.ActionCurrent {
			current++
			continue
		}
		printResult(out, f)
	}
	if nav := r.Navigation; nav != nil && nav.Action != sync.ActionCurrent {
		printResult(out, *nav)
	}
	for _, path := range r.Removed {
		_, _ = fmt.Fprintf(out, "  %-8s %-16s %s (no longer generated, left in place)\n", "removed", "", path)
	}

	written, skipped, failed := r.Counts()
	_, _ = fmt.Fprintf(out, "%d written, %d skipped, %d failed, %d already current\n", written, skipped, failed, current)
	if skipped > 0 && !r.Force {
		_, _ = fmt.Fprintln(out, "Skipped files were edited locally; use --force to overwrite them (a backup is kept).")
	}
}

func printResult(out io.Writer, f sync.FileResult) {
	line := fmt.Sprintf("  %-8s %-16s %s", f.Action, f.Status, f.Path)
	switch {
	case f.Err != nil:
		line += ": " + f.Err.Error()
	case f.BackupPath != "":
		line += " (backup: " + f.BackupPath + ")"
	}
	_, _ = fmt.Fprintln(out, line)
}

func printStatus(out io.Writer, r *sync.Report) {
	if r.Adoption != nil {
		printReport(out, r)
		return
	}
	for _, f := range r.Files {
		status := string(f.Status)
		if f.Err != nil {
			status = "error"
		}
		_, _ = fmt.Fprintf(out, "%-16s %s\n", status, f.Path)
	}
	for _, path := range r.Removed {
		_, _ = fmt.Fprintf(out, "%-16s %s\n", "removed", path)
	}
}

func printHistory(out io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return
	}
	for _, r := range runs {
		kind := "sync"
		switch {
		case r.Adopted:
			kind = "adopt"
		case r.Force:
			kind = "sync --force"
		}
		_, _ = fmt.Fprintf(out, "%s  %s  %-12s %d written, %d skipped, %d failed  (%s, %s)\n",
			r.StartedAt.Local().Format(time.DateTime), shortID(r.ID), kind,
			r.Written, r.Skipped, r.Failed, r.ToolVersion, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
