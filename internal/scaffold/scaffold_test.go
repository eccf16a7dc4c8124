package scaffold

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/sync"
	"github.com/schaermu/docsync/internal/templates"
)

var args = templates.Args{ProjectName: "Acme", ThemeName: "forest", DefaultPageID: "start"}

func newScaffolder() *Scaffolder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return New(manifest.NewStore(logger), logger, digest.SHA256, "1.0.0", now)
}

func TestInit_FreshSite(t *testing.T) {
	for _, v := range templates.Variants() {
		t.Run(string(v), func(t *testing.T) {
			root := t.TempDir()
			p, err := templates.ForVariant(v)
			require.NoError(t, err)

			res, err := newScaffolder().Init(context.Background(), root, v, args)
			require.NoError(t, err)
			assert.Len(t, res.Written, len(p.OwnedPaths())+len(p.ConsumerPaths()))
			assert.Empty(t, res.Kept)

			m, err := manifest.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil))).Read(root)
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, v, m.TemplateVariant)
			assert.Equal(t, args, m.Args())

			for _, rel := range p.OwnedPaths() {
				want, err := p.Render(rel, args)
				require.NoError(t, err)
				got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
				require.NoError(t, err)
				assert.Equal(t, want, string(got), rel)

				rec := m.Files[rel]
				assert.Equal(t, manifest.OwnerTool, rec.Owner)
				assert.Equal(t, digest.SHA256.SumString(want), rec.ContentHash)
				assert.Equal(t, "1.0.0", rec.ToolVersion)
			}
			for _, rel := range p.ConsumerPaths() {
				assert.Equal(t, manifest.FileRecord{Owner: manifest.OwnerConsumer}, m.Files[rel])
			}
		})
	}
}

func TestInit_RefusesManagedSite(t *testing.T) {
	root := t.TempDir()
	s := newScaffolder()

	_, err := s.Init(context.Background(), root, templates.Astro, args)
	require.NoError(t, err)

	_, err = s.Init(context.Background(), root, templates.Astro, args)
	assert.ErrorIs(t, err, ErrAlreadyManaged)
}

func TestInit_KeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	custom := filepath.Join(root, "src", "styles", "theme.css")
	require.NoError(t, os.MkdirAll(filepath.Dir(custom), 0755))
	require.NoError(t, os.WriteFile(custom, []byte(":root {}\n"), 0644))

	res, err := newScaffolder().Init(context.Background(), root, templates.Astro, args)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/styles/theme.css"}, res.Kept)

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, ":root {}\n", string(data))

	rec := res.Manifest.Files["src/styles/theme.css"]
	assert.Equal(t, manifest.OwnerTool, rec.Owner)
	assert.Empty(t, rec.ContentHash)

	// The untouched file is protected on the next sync.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	report, err := sync.NewEngine(manifest.NewStore(logger), logger, sync.Options{ToolVersion: "1.0.0"}).
		Run(context.Background(), root, sync.Request{})
	require.NoError(t, err)

	got, ok := report.Result("src/styles/theme.css")
	require.True(t, ok)
	assert.Equal(t, sync.StatusModified, got.Status)
	assert.Equal(t, sync.ActionSkipped, got.Action)
}

func TestInit_InvalidArgs(t *testing.T) {
	root := t.TempDir()
	_, err := newScaffolder().Init(context.Background(), root, templates.Astro,
		templates.Args{ProjectName: "x", ThemeName: "neon", DefaultPageID: "start"})
	require.Error(t, err)

	_, err = os.Stat(manifest.Path(root))
	assert.True(t, os.IsNotExist(err))
}

func TestInit_UnknownVariant(t *testing.T) {
	_, err := newScaffolder().Init(context.Background(), t.TempDir(), "hugo", args)
	assert.Error(t, err)
}

func TestInit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScaffolder().Init(ctx, t.TempDir(), templates.Astro, args)
	assert.ErrorIs(t, err, context.Canceled)
}
