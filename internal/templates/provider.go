// Package templates provides the generated content for each supported site
// variant. The sync engine treats a Provider as a pure function from a path
// and Args to file content; it never interprets what the content means.
package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"text/template"

	"github.com/schaermu/docsync/internal/content"
)

//go:embed tmpl
var templateFS embed.FS

// Variant identifies a template family. It is fixed for the life of a site.
type Variant string

const (
	Astro Variant = "astro"
	Next  Variant = "next"
)

// Field names an inferable template argument.
type Field string

const (
	FieldTheme       Field = "theme"
	FieldProjectName Field = "projectName"
	FieldDefaultPage Field = "defaultPage"
)

// Fingerprint describes where a template argument can be recovered from
// generated content. The first capture group of Pattern holds the value.
type Fingerprint struct {
	Path    string
	Field   Field
	Pattern *regexp.Regexp
}

// NavigationSpec locates the consumer navigation file and the pages it indexes.
type NavigationSpec struct {
	Path       string
	PagesDir   string
	Extensions []string
}

// Provider generates the files of one site variant.
type Provider interface {
	Variant() Variant
	// OwnedPaths lists tool-owned paths in a fixed order.
	OwnedPaths() []string
	// ConsumerPaths lists files written once at scaffold time.
	ConsumerPaths() []string
	Render(path string, args Args) (string, error)
	// Markers are paths whose joint presence identifies a site of this variant.
	Markers() []string
	Fingerprints() []Fingerprint
	Navigation() NavigationSpec
}

type fileTemplate struct {
	path string
	name string
}

type siteProvider struct {
	variant      Variant
	owned        []fileTemplate
	consumer     []fileTemplate
	markers      []string
	fingerprints []Fingerprint
	nav          NavigationSpec
	tmpl         *template.Template
}

// ErrUnknownPath is returned by Render for paths the provider does not generate.
var ErrUnknownPath = errors.New("path is not generated by this template variant")

var funcs = template.FuncMap{
	"json": func(s string) (string, error) {
		data, err := json.Marshal(s)
		return string(data), err
	},
}

func newProvider(v Variant, owned, consumer []fileTemplate, markers []string, fps []Fingerprint, nav NavigationSpec) *siteProvider {
	tmpl := template.Must(template.New(string(v)).Funcs(funcs).ParseFS(templateFS, "tmpl/"+string(v)+"/*.tmpl"))
	return &siteProvider{
		variant:      v,
		owned:        owned,
		consumer:     consumer,
		markers:      markers,
		fingerprints: fps,
		nav:          nav,
		tmpl:         tmpl,
	}
}

var (
	accentPattern = regexp.MustCompile(`--docsync-accent:\s*(#[0-9a-fA-F]{6})\s*;`)
	redirectPage  = regexp.MustCompile(`'/docs/([a-z0-9]+(?:-[a-z0-9]+)*)'`)
)

var astroProvider = newProvider(Astro,
	[]fileTemplate{
		{path: "package.json", name: "package.json.tmpl"},
		{path: "astro.config.mjs", name: "astro.config.mjs.tmpl"},
		{path: "src/styles/theme.css", name: "theme.css.tmpl"},
		{path: "src/styles/header.css", name: "header.css.tmpl"},
		{path: "src/components/Header.astro", name: "Header.astro.tmpl"},
		{path: "src/layouts/DocsLayout.astro", name: "DocsLayout.astro.tmpl"},
		{path: "src/pages/index.astro", name: "index.astro.tmpl"},
		{path: "src/pages/docs/[...slug].astro", name: "slug.astro.tmpl"},
	},
	[]fileTemplate{
		{path: "src/content/navigation.json"},
		{path: "src/content/docs/index.md", name: "index.md.tmpl"},
	},
	[]string{"astro.config.mjs", "src/components/Header.astro"},
	[]Fingerprint{
		{Path: "src/styles/theme.css", Field: FieldTheme, Pattern: accentPattern},
		{Path: "src/components/Header.astro", Field: FieldProjectName, Pattern: regexp.MustCompile(`<a href="/" class="site-title">([^<\n]*)</a>`)},
		{Path: "src/pages/index.astro", Field: FieldDefaultPage, Pattern: redirectPage},
	},
	NavigationSpec{Path: "src/content/navigation.json", PagesDir: "src/content/docs", Extensions: []string{".md", ".mdx"}},
)

var nextProvider = newProvider(Next,
	[]fileTemplate{
		{path: "package.json", name: "package.json.tmpl"},
		{path: "next.config.mjs", name: "next.config.mjs.tmpl"},
		{path: "app/globals.css", name: "globals.css.tmpl"},
		{path: "app/layout.tsx", name: "layout.tsx.tmpl"},
		{path: "app/page.tsx", name: "page.tsx.tmpl"},
		{path: "app/docs/[slug]/page.tsx", name: "slug.page.tsx.tmpl"},
		{path: "components/Header.tsx", name: "Header.tsx.tmpl"},
		{path: "components/header.module.css", name: "header.module.css.tmpl"},
	},
	[]fileTemplate{
		{path: "content/navigation.json"},
		{path: "content/docs/index.mdx", name: "index.mdx.tmpl"},
	},
	[]string{"next.config.mjs", "components/Header.tsx"},
	[]Fingerprint{
		{Path: "app/globals.css", Field: FieldTheme, Pattern: accentPattern},
		{Path: "components/Header.tsx", Field: FieldProjectName, Pattern: regexp.MustCompile(`<a href="/" className="site-title">([^<\n]*)</a>`)},
		{Path: "app/page.tsx", Field: FieldDefaultPage, Pattern: redirectPage},
	},
	NavigationSpec{Path: "content/navigation.json", PagesDir: "content/docs", Extensions: []string{".mdx", ".md"}},
)

// Variants lists every supported variant in detection order.
func Variants() []Variant {
	return []Variant{Astro, Next}
}

// ForVariant returns the provider for v.
func ForVariant(v Variant) (Provider, error) {
	switch v {
	case Astro:
		return astroProvider, nil
	case Next:
		return nextProvider, nil
	default:
		return nil, fmt.Errorf("unsupported template variant %q", v)
	}
}

func (p *siteProvider) Variant() Variant { return p.variant }

func (p *siteProvider) OwnedPaths() []string { return paths(p.owned) }

func (p *siteProvider) ConsumerPaths() []string { return paths(p.consumer) }

func (p *siteProvider) Markers() []string { return append([]string(nil), p.markers...) }

func (p *siteProvider) Fingerprints() []Fingerprint {
	return append([]Fingerprint(nil), p.fingerprints...)
}

func (p *siteProvider) Navigation() NavigationSpec { return p.nav }

// Render produces the content of path for args.
func (p *siteProvider) Render(path string, args Args) (string, error) {
	theme, ok := ThemeByName(args.ThemeName)
	if !ok {
		return "", fmt.Errorf("unknown theme %q", args.ThemeName)
	}

	if path == p.nav.Path {
		return content.Build(args.DefaultPageID, []content.Page{
			{ID: "index", Title: "Index", File: "index" + p.nav.Extensions[0]},
		}).Render()
	}

	ft, ok := p.lookup(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}

	data := struct {
		ProjectName   string
		PackageName   string
		ThemeName     string
		Accent        string
		DefaultPageID string
	}{
		ProjectName:   args.ProjectName,
		PackageName:   PackageName(args.ProjectName),
		ThemeName:     theme.Name,
		Accent:        theme.Accent,
		DefaultPageID: args.DefaultPageID,
	}

	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, ft.name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", path, err)
	}
	return buf.String(), nil
}

func (p *siteProvider) lookup(path string) (fileTemplate, bool) {
	for _, ft := range p.owned {
		if ft.path == path {
			return ft, true
		}
	}
	for _, ft := range p.consumer {
		if ft.path == path && ft.name != "" {
			return ft, true
		}
	}
	return fileTemplate{}, false
}

func paths(fts []fileTemplate) []string {
	out := make([]string, 0, len(fts))
	for _, ft := range fts {
		out = append(out, ft.path)
	}
	return out
}
