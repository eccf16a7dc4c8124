package templates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults used when a value is neither supplied nor inferable.
const (
	DefaultProjectName   = "Documentation"
	DefaultThemeName     = "ocean"
	DefaultDefaultPageID = "introduction"
)

// Args are the values a site's templates are parameterized with. They are
// persisted in the manifest and re-supplied on every sync.
type Args struct {
	ProjectName   string `validate:"required,max=120,singleline,trimmed"`
	ThemeName     string `validate:"required,theme"`
	DefaultPageID string `validate:"required,max=64,slug"`
}

// Theme maps a theme identifier to the accent colour literal written into
// the generated stylesheets.
type Theme struct {
	Name   string
	Accent string
}

// Themes is the closed set of supported themes.
var Themes = []Theme{
	{Name: "ocean", Accent: "#0ea5e9"},
	{Name: "forest", Accent: "#16a34a"},
	{Name: "sunset", Accent: "#f97316"},
	{Name: "slate", Accent: "#64748b"},
	{Name: "violet", Accent: "#8b5cf6"},
}

// ThemeByName looks up a theme by identifier.
func ThemeByName(name string) (Theme, bool) {
	for _, th := range Themes {
		if th.Name == name {
			return th, true
		}
	}
	return Theme{}, false
}

// ThemeByAccent looks up the theme that produces the given accent colour.
// Matching is case-insensitive.
func ThemeByAccent(accent string) (Theme, bool) {
	for _, th := range Themes {
		if strings.EqualFold(th.Accent, accent) {
			return th, true
		}
	}
	return Theme{}, false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	// Adoption reads the name back trimmed, so padded names would not
	// render the same bytes again.
	_ = v.RegisterValidation("trimmed", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) == s
	})
	_ = v.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
		_, ok := ThemeByName(fl.Field().String())
		return ok
	})
	return v
}

// Validate checks the arguments against the template constraints.
func (a Args) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid template arguments: %w", err)
	}
	return nil
}

// WithDefaults fills empty fields with the package defaults.
func (a Args) WithDefaults() Args {
	if a.ProjectName == "" {
		a.ProjectName = DefaultProjectName
	}
	if a.ThemeName == "" {
		a.ThemeName = DefaultThemeName
	}
	if a.DefaultPageID == "" {
		a.DefaultPageID = DefaultDefaultPageID
	}
	return a
}

// PackageName derives an npm-compatible package name from the project name.
func PackageName(projectName string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(projectName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		return "docs"
	}
	return name
}
