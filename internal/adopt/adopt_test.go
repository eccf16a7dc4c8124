package adopt

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testResolver() *Resolver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(logger, templates.Args{}, digest.SHA256, "1.2.3", func() time.Time { return fixedNow })
}

// writeSite renders every file of p into dir.
func writeSite(t *testing.T, dir string, p templates.Provider, args templates.Args) {
	t.Helper()
	for _, rel := range append(p.OwnedPaths(), p.ConsumerPaths()...) {
		body, err := p.Render(rel, args)
		require.NoError(t, err)
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
}

func provider(t *testing.T, v templates.Variant) templates.Provider {
	t.Helper()
	p, err := templates.ForVariant(v)
	require.NoError(t, err)
	return p
}

func TestDetect(t *testing.T) {
	args := templates.Args{ProjectName: "X", ThemeName: "slate", DefaultPageID: "intro"}

	for _, v := range templates.Variants() {
		t.Run(string(v), func(t *testing.T) {
			dir := t.TempDir()
			writeSite(t, dir, provider(t, v), args)

			p, ok := Detect(dir)
			require.True(t, ok)
			assert.Equal(t, v, p.Variant())
		})
	}

	t.Run("empty dir", func(t *testing.T) {
		_, ok := Detect(t.TempDir())
		assert.False(t, ok)
	})

	t.Run("partial markers", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "astro.config.mjs"), []byte("x"), 0644))
		_, ok := Detect(dir)
		assert.False(t, ok)
	})
}

func TestResolve_PristineSite(t *testing.T) {
	for _, v := range templates.Variants() {
		t.Run(string(v), func(t *testing.T) {
			dir := t.TempDir()
			p := provider(t, v)
			args := templates.Args{ProjectName: "Tom & Jerry Docs", ThemeName: "violet", DefaultPageID: "quick-start"}
			writeSite(t, dir, p, args)

			res, err := testResolver().Resolve(dir, p)
			require.NoError(t, err)

			m := res.Manifest
			assert.Empty(t, res.Fallbacks)
			assert.Equal(t, args, m.Args())
			assert.Equal(t, v, m.TemplateVariant)
			assert.Equal(t, "1.2.3", m.ToolVersion)
			assert.True(t, m.CreatedAt.Equal(fixedNow))

			for _, rel := range p.OwnedPaths() {
				data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
				require.NoError(t, err)
				rec, ok := m.Files[rel]
				require.True(t, ok, rel)
				assert.Equal(t, manifest.OwnerTool, rec.Owner)
				assert.Equal(t, digest.SHA256.Sum(data), rec.ContentHash)
			}
			for _, rel := range p.ConsumerPaths() {
				rec, ok := m.Files[rel]
				require.True(t, ok, rel)
				assert.Equal(t, manifest.OwnerConsumer, rec.Owner)
				assert.Empty(t, rec.ContentHash)
			}
		})
	}
}

func TestResolve_FallsBackPerField(t *testing.T) {
	dir := t.TempDir()
	p := provider(t, templates.Astro)
	writeSite(t, dir, p, templates.Args{ProjectName: "Handbook", ThemeName: "sunset", DefaultPageID: "welcome"})

	// Hand-edited accent colour no longer maps to a theme.
	themePath := filepath.Join(dir, "src", "styles", "theme.css")
	data, err := os.ReadFile(themePath)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "#f97316", "#123456", 1)
	require.NoError(t, os.WriteFile(themePath, []byte(edited), 0644))

	res, err := testResolver().Resolve(dir, p)
	require.NoError(t, err)

	assert.Equal(t, []templates.Field{templates.FieldTheme}, res.Fallbacks)
	assert.Equal(t, templates.DefaultThemeName, res.Manifest.ThemeName)
	assert.Equal(t, "Handbook", res.Manifest.ProjectName)
	assert.Equal(t, "welcome", res.Manifest.DefaultPageID)
	// The edited file is still the adopted baseline.
	assert.Equal(t, digest.SHA256.SumString(edited), res.Manifest.Files["src/styles/theme.css"].ContentHash)
}

func TestResolve_MissingFilesNotRecorded(t *testing.T) {
	dir := t.TempDir()
	p := provider(t, templates.Next)
	writeSite(t, dir, p, templates.Args{ProjectName: "N", ThemeName: "ocean", DefaultPageID: "intro"})

	require.NoError(t, os.Remove(filepath.Join(dir, "app", "globals.css")))
	require.NoError(t, os.Remove(filepath.Join(dir, "content", "docs", "index.mdx")))

	res, err := testResolver().Resolve(dir, p)
	require.NoError(t, err)

	assert.NotContains(t, res.Manifest.Files, "app/globals.css")
	assert.NotContains(t, res.Manifest.Files, "content/docs/index.mdx")
	assert.Contains(t, res.Fallbacks, templates.FieldTheme)
	assert.Contains(t, res.Manifest.Files, "components/Header.tsx")
}
