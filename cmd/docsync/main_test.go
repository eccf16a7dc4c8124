package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/docsync/internal/config"
	"github.com/schaermu/docsync/internal/journal"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/sync"
	"github.com/schaermu/docsync/internal/templates"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	return cfg
}

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o600))

	initVariant, initProjectName, initTheme, initDefaultPage = "astro", "", "", ""
	dryRun, force, refreshNav = false, false, false
	historyLimit = 10

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config=" + cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := []byte(`sync:
  hash_algorithm: blake3
defaults:
  theme: violet
`)
	require.NoError(t, os.WriteFile(cfgPath, configContent, 0o600))

	cfgFile = cfgPath
	cfg, err := loadConfig(quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "blake3", cfg.Sync.HashAlgorithm)
	assert.Equal(t, "violet", cfg.TemplateDefaults().ThemeName)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := loadConfig(quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("defaults:\n  theme: neon\n"), 0o600))

	_, err := loadConfig(quietLogger())
	assert.Error(t, err)
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docsync "+version)
}

func TestInitSyncHistory(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "init", root, "--project-name", "Acme", "--theme", "forest")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized astro site")

	m, err := manifest.NewStore(quietLogger()).Read(root)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Acme", m.ProjectName)
	assert.Equal(t, "forest", m.ThemeName)

	_, err = execute(t, "init", root)
	assert.ErrorContains(t, err, "already managed")

	out, err = execute(t, "sync", root)
	require.NoError(t, err)
	assert.Contains(t, out, "0 written, 0 skipped, 0 failed")

	out, err = execute(t, "history", root)
	require.NoError(t, err)
	assert.Contains(t, out, "sync ")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestSyncCmd_ModifiedFile(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", root)
	require.NoError(t, err)

	header := filepath.Join(root, "src", "styles", "header.css")
	require.NoError(t, os.WriteFile(header, []byte("/* mine */\n"), 0o644))

	out, err := execute(t, "sync", root)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "--force")

	out, err = execute(t, "status", root)
	require.NoError(t, err)
	assert.Regexp(t, `modified\s+src/styles/header.css`, out)

	out, err = execute(t, "sync", root, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "backup: ")
}

func TestSyncCmd_NotManaged(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "sync", root)
	assert.ErrorIs(t, err, sync.ErrNotManaged)

	_, statErr := os.Stat(filepath.Join(root, manifest.StateDir))
	assert.True(t, os.IsNotExist(statErr), "nothing may be created in an unmanaged directory")
}

func TestSyncSite_Locked(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", root)
	require.NoError(t, err)

	held, err := journal.Open(journalPath(root), time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Close() }()

	cfg := defaultConfig(t)
	cfg.Sync.LockTimeout = 50 * time.Millisecond

	err = syncSite(context.Background(), io.Discard, quietLogger(), cfg, root, sync.Request{})
	assert.True(t, errors.Is(err, journal.ErrLocked), "got %v", err)

	// Dry runs do not need the lock.
	err = syncSite(context.Background(), io.Discard, quietLogger(), cfg, root, sync.Request{DryRun: true})
	assert.NoError(t, err)
}

func TestHistoryCmd_ReadersShareTheJournal(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", root)
	require.NoError(t, err)
	_, err = execute(t, "sync", root)
	require.NoError(t, err)

	reader, err := journal.OpenReadOnly(journalPath(root), time.Second)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	out, err := execute(t, "history", root)
	require.NoError(t, err)
	assert.Contains(t, out, "sync ")
}

func TestSyncSite_JournalDisabled(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", root)
	require.NoError(t, err)

	cfg := defaultConfig(t)
	disabled := false
	cfg.Sync.Journal = &disabled

	require.NoError(t, syncSite(context.Background(), io.Discard, quietLogger(), cfg, root, sync.Request{}))

	j, err := journal.Open(journalPath(root), time.Second)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	runs, err := j.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPrintReport_Adoption(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, &sync.Report{
		Root: "/site",
		Adoption: &sync.Adoption{
			Variant:   "next",
			Fallbacks: []templates.Field{templates.FieldTheme},
			Files:     10,
		},
	})

	assert.Contains(t, out.String(), "Adopted next site")
	assert.Contains(t, out.String(), "could not infer theme")
	assert.Contains(t, out.String(), "run sync again")
}
