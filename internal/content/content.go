// Package content discovers consumer documentation pages and renders the
// navigation index that lists them.
package content

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Page is a single documentation page found on disk.
type Page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	File  string `json:"file"`
}

// Navigation is the document written to the navigation file.
type Navigation struct {
	DefaultPage string `json:"defaultPage"`
	Pages       []Page `json:"pages"`
}

// IsPageFile returns true if the file has one of the given extensions
func IsPageFile(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, valid := range extensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// DiscoverPages finds all page files below dir. Hidden files and
// directories (names starting with ".") are skipped. A missing directory
// yields no pages.
func DiscoverPages(dir string, extensions []string) ([]Page, error) {
	var pages []Page

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}

		// Skip hidden files and directories (e.g. .obsidian, .DS_Store)
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() || !IsPageFile(path, extensions) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		id := strings.TrimSuffix(rel, filepath.Ext(rel))

		pages = append(pages, Page{
			ID:    id,
			Title: TitleFromID(id),
			File:  rel,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pages, nil
}

// TitleFromID turns "getting-started/install_guide" into "Install Guide".
func TitleFromID(id string) string {
	base := id
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Build orders pages by id with the default page first.
func Build(defaultPage string, pages []Page) Navigation {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if (sorted[i].ID == defaultPage) != (sorted[j].ID == defaultPage) {
			return sorted[i].ID == defaultPage
		}
		return sorted[i].ID < sorted[j].ID
	})
	if sorted == nil {
		sorted = []Page{}
	}
	return Navigation{DefaultPage: defaultPage, Pages: sorted}
}

// Render serializes the navigation with stable formatting and a trailing newline.
func (n Navigation) Render() (string, error) {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
