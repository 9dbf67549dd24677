package languages

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/screening-engine/internal/models"
)

// Catalog manages the table of selectable languages
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]*models.Language
	order  []string
}

// catalogFile is the on-disk YAML layout
type catalogFile struct {
	Languages []models.Language `yaml:"languages"`
}

// NewCatalog creates a catalog preloaded with the built-in languages
func NewCatalog() *Catalog {
	c := &Catalog{byName: make(map[string]*models.Language)}
	for _, lang := range defaults() {
		c.Add(lang)
	}
	return c
}

// LoadFromFile merges languages from a YAML file into the catalog.
// Entries with a known value replace the built-in definition.
func (c *Catalog) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, lang := range file.Languages {
		if lang.Value == "" {
			return fmt.Errorf("language #%d: value is required", i+1)
		}
		if lang.JudgeID < 0 {
			return fmt.Errorf("language %s: judge_id must not be negative", lang.Value)
		}
		if lang.Label == "" {
			lang.Label = lang.Value
		}
		c.Add(lang)
	}

	slog.Info("languages loaded", "file", path, "count", len(file.Languages))
	return nil
}

// Add registers or replaces a language
func (c *Catalog) Add(lang models.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[lang.Value]; !exists {
		c.order = append(c.order, lang.Value)
	}
	l := lang
	c.byName[lang.Value] = &l
}

// Get returns a language by value, nil if unknown
func (c *Catalog) Get(value string) *models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[value]
}

// ByJudgeID returns the first language mapped to a judge language id
func (c *Catalog) ByJudgeID(id int) *models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.order {
		if l := c.byName[name]; l.JudgeID == id {
			return l
		}
	}
	return nil
}

// List returns all languages in registration order
func (c *Catalog) List() []*models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*models.Language, 0, len(c.order))
	for _, name := range c.order {
		result = append(result, c.byName[name])
	}
	return result
}

// Default returns the language preselected for code questions
func (c *Catalog) Default() *models.Language {
	if l := c.Get(models.DefaultLanguage); l != nil {
		return l
	}
	if all := c.List(); len(all) > 0 {
		return all[0]
	}
	return nil
}
