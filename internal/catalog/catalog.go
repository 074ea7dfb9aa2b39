// Package catalog holds the base-template registry and template selection.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Template describes one prebuilt base APK and the customizations it supports.
type Template struct {
	ID        string
	APKPath   string
	Supported []string
	Required  []string
}

// Keystore holds the signing credentials from the registry file.
// Individual fields may be overridden via environment at startup.
type Keystore struct {
	Path      string `json:"path"`
	Alias     string `json:"alias"`
	StorePass string `json:"store_pass"`
	KeyPass   string `json:"key_pass"`
}

// Registry is the immutable set of base templates loaded at process start.
type Registry struct {
	templates []Template
	byID      map[string]Template
	defaultID string
	keystore  Keystore
}

type fileTemplate struct {
	APKPath        string   `json:"apk_path"`
	Customizations []string `json:"customizations"`
	RequiredFields []string `json:"required_fields"`
}

type registryFile struct {
	Default   string                  `json:"default"`
	Order     []string                `json:"order"`
	Templates map[string]fileTemplate `json:"templates"`
	Keystore  Keystore                `json:"keystore"`
}

// Load reads the template registry from a JSON config file.
// The "order" list is the authoritative priority order for selection;
// ties between otherwise equally suitable templates are broken by it.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template registry: %w", err)
	}

	templates := make([]Template, 0, len(file.Order))
	for _, id := range file.Order {
		ft, ok := file.Templates[id]
		if !ok {
			return nil, fmt.Errorf("template registry: order references unknown template %q", id)
		}
		templates = append(templates, Template{
			ID:        id,
			APKPath:   ft.APKPath,
			Supported: ft.Customizations,
			Required:  ft.RequiredFields,
		})
	}

	reg, err := New(templates, file.Default)
	if err != nil {
		return nil, err
	}
	reg.keystore = file.Keystore
	return reg, nil
}

// New builds a registry from an ordered template list.
// An empty defaultID falls back to the first template.
func New(templates []Template, defaultID string) (*Registry, error) {
	if len(templates) == 0 {
		return nil, errors.New("template registry: no templates configured")
	}

	byID := make(map[string]Template, len(templates))
	for _, t := range templates {
		if t.ID == "" {
			return nil, errors.New("template registry: template with empty id")
		}
		if t.APKPath == "" {
			return nil, fmt.Errorf("template registry: template %q has no apk_path", t.ID)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("template registry: duplicate template %q", t.ID)
		}
		byID[t.ID] = t
	}

	if defaultID == "" {
		defaultID = templates[0].ID
	}
	if _, ok := byID[defaultID]; !ok {
		return nil, fmt.Errorf("template registry: default template %q not configured", defaultID)
	}

	return &Registry{
		templates: templates,
		byID:      byID,
		defaultID: defaultID,
	}, nil
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (Template, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Default returns the fallback template.
func (r *Registry) Default() Template {
	return r.byID[r.defaultID]
}

// Keystore returns the signing credentials from the registry file.
func (r *Registry) Keystore() Keystore {
	return r.keystore
}

// Select picks the base template for the provided customization fields.
// Empty values count as not provided. The first template (in registry order)
// whose required fields are all provided and whose supported fields cover
// every provided field wins; with no match the configured default is used.
// The decision is deterministic and side-effect free.
func (r *Registry) Select(provided map[string]string) Template {
	providedSet := make(map[string]bool, len(provided))
	for field, value := range provided {
		if value != "" {
			providedSet[field] = true
		}
	}

	for _, t := range r.templates {
		if !containsAll(providedSet, t.Required) {
			continue
		}
		if !coveredBy(providedSet, t.Supported) {
			continue
		}
		return t
	}

	return r.Default()
}

// containsAll reports whether every field in required is provided.
func containsAll(provided map[string]bool, required []string) bool {
	for _, field := range required {
		if !provided[field] {
			return false
		}
	}
	return true
}

// coveredBy reports whether every provided field appears in supported.
func coveredBy(provided map[string]bool, supported []string) bool {
	supportedSet := make(map[string]bool, len(supported))
	for _, field := range supported {
		supportedSet[field] = true
	}
	for field := range provided {
		if !supportedSet[field] {
			return false
		}
	}
	return true
}
