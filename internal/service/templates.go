package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quothlabs/quoth/internal/domain"
)

// TemplateCategory filters the template inventory.
type TemplateCategory string

// Template categories, matching the on-disk tree's top-level dirs.
const (
	TemplateAll          TemplateCategory = "all"
	TemplateArchitecture TemplateCategory = "architecture"
	TemplatePatterns     TemplateCategory = "patterns"
	TemplateContracts    TemplateCategory = "contracts"
)

// TemplateInfo is one entry of the template inventory.
type TemplateInfo struct {
	ID       string `json:"template_id"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

// TemplateService reads knowledge-base starter templates from a
// read-only on-disk tree: <dir>/<category>/<name>.md.
type TemplateService struct {
	dir string
}

// NewTemplateService creates the template reader.
func NewTemplateService(dir string) *TemplateService {
	return &TemplateService{dir: dir}
}

// List returns the template inventory, optionally filtered by category.
func (s *TemplateService) List(category TemplateCategory) ([]TemplateInfo, error) {
	if category == "" {
		category = TemplateAll
	}
	switch category {
	case TemplateAll, TemplateArchitecture, TemplatePatterns, TemplateContracts:
	default:
		return nil, fmt.Errorf("unknown template category %q: %w", category, domain.ErrValidation)
	}

	var out []TemplateInfo
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cat := e.Name()
		if category != TemplateAll && cat != string(category) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, cat))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(f.Name(), ".md")
			out = append(out, TemplateInfo{
				ID:       cat + "/" + name,
				Category: cat,
				Name:     name,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns one template's content by id (<category>/<name>). Ids are
// sanitized so reads cannot escape the template tree.
func (s *TemplateService) Get(templateID string) (string, error) {
	clean := filepath.Clean(templateID)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid template id %q: %w", templateID, domain.ErrValidation)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, clean+".md")) //nolint:gosec // path confined above
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("template %q not found: %w", templateID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}
