// Package adopt synthesizes a manifest for a directory that was generated by
// docsync but has lost (or never had) its manifest. Current disk content is
// trusted as the tool's own prior output and template arguments are
// recovered from known content shapes on a best-effort basis.
package adopt

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/fsutil"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/templates"
)

// Detect returns the provider whose marker paths all exist under root.
func Detect(root string) (templates.Provider, bool) {
	for _, v := range templates.Variants() {
		p, err := templates.ForVariant(v)
		if err != nil {
			continue
		}
		if hasAll(root, p.Markers()) {
			return p, true
		}
	}
	return nil, false
}

func hasAll(root string, paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, rel := range paths {
		abs, err := fsutil.SafeJoin(root, rel)
		if err != nil {
			return false
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Result is a synthesized manifest plus what had to fall back to defaults.
type Result struct {
	Manifest *manifest.Manifest
	Provider templates.Provider
	// Fallbacks lists the fields that could not be inferred.
	Fallbacks []templates.Field
}

// Resolver builds adoption manifests.
type Resolver struct {
	logger      *slog.Logger
	defaults    templates.Args
	alg         digest.Algorithm
	toolVersion string
	now         func() time.Time
}

// NewResolver creates a resolver. defaults supplies the values used when
// inference fails; empty fields fall back to the template package defaults.
func NewResolver(logger *slog.Logger, defaults templates.Args, alg digest.Algorithm, toolVersion string, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		logger:      logger,
		defaults:    defaults.WithDefaults(),
		alg:         alg,
		toolVersion: toolVersion,
		now:         now,
	}
}

// Resolve builds the manifest for root using provider p.
func (r *Resolver) Resolve(root string, p templates.Provider) (*Result, error) {
	args, fallbacks := r.infer(root, p)
	if err := args.Validate(); err != nil {
		r.logger.Warn("inferred template arguments invalid, using defaults", "error", err)
		args = r.defaults
		fallbacks = []templates.Field{templates.FieldTheme, templates.FieldProjectName, templates.FieldDefaultPage}
	}

	m := manifest.New(p.Variant(), args, r.alg, r.toolVersion, r.now())

	for _, rel := range p.OwnedPaths() {
		data, exists, err := readRel(root, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if !exists {
			continue
		}
		m.Files[rel] = manifest.FileRecord{
			Owner:       manifest.OwnerTool,
			ContentHash: r.alg.Sum(data),
			ToolVersion: r.toolVersion,
		}
	}

	for _, rel := range p.ConsumerPaths() {
		_, exists, err := readRel(root, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if exists {
			m.Files[rel] = manifest.FileRecord{Owner: manifest.OwnerConsumer}
		}
	}

	r.logger.Info("adopted existing site",
		"variant", p.Variant(),
		"project", args.ProjectName,
		"theme", args.ThemeName,
		"default_page", args.DefaultPageID,
		"files", len(m.Files),
		"fallbacks", len(fallbacks))

	return &Result{Manifest: m, Provider: p, Fallbacks: fallbacks}, nil
}

// infer recovers template arguments from fingerprinted content. Each field
// that cannot be matched keeps its default.
func (r *Resolver) infer(root string, p templates.Provider) (templates.Args, []templates.Field) {
	args := r.defaults
	found := make(map[templates.Field]bool)

	for _, fp := range p.Fingerprints() {
		if found[fp.Field] {
			continue
		}
		data, exists, err := readRel(root, fp.Path)
		if err != nil || !exists {
			continue
		}
		m := fp.Pattern.FindSubmatch(data)
		if len(m) < 2 {
			continue
		}
		value := string(m[1])

		switch fp.Field {
		case templates.FieldTheme:
			th, ok := templates.ThemeByAccent(value)
			if !ok {
				r.logger.Debug("accent colour does not match a known theme", "accent", value)
				continue
			}
			args.ThemeName = th.Name
		case templates.FieldProjectName:
			name := strings.TrimSpace(html.UnescapeString(value))
			if name == "" {
				continue
			}
			args.ProjectName = name
		case templates.FieldDefaultPage:
			args.DefaultPageID = value
		default:
			continue
		}
		found[fp.Field] = true
	}

	var fallbacks []templates.Field
	for _, f := range []templates.Field{templates.FieldTheme, templates.FieldProjectName, templates.FieldDefaultPage} {
		if !found[f] {
			fallbacks = append(fallbacks, f)
		}
	}
	return args, fallbacks
}

func readRel(root, rel string) ([]byte, bool, error) {
	abs, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		return nil, false, err
	}
	return fsutil.ReadOptional(abs)
}
