// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalogue []byte

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrMissingSlot      = errors.New("missing slot value")
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z][a-z0-9_]*)\s*\}\}`)

// Template is a named, versioned prompt body with a fixed set of slots.
// It is immutable once built.
type Template struct {
	name        string
	version     string
	description string
	slots       []string
	body        string
}

// NewTemplate checks that every {{slot}} in body is declared and every
// declared slot is used.
func NewTemplate(spec TemplateSpec) (*Template, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTemplate)
	}
	if strings.TrimSpace(spec.Version) == "" {
		return nil, fmt.Errorf("%w: %s has no version", ErrInvalidTemplate, spec.Name)
	}
	if strings.TrimSpace(spec.Body) == "" {
		return nil, fmt.Errorf("%w: %s has an empty body", ErrInvalidTemplate, spec.Name)
	}

	declared := make(map[string]bool, len(spec.Slots))
	for _, s := range spec.Slots {
		if declared[s] {
			return nil, fmt.Errorf("%w: %s declares slot %q twice", ErrInvalidTemplate, spec.Name, s)
		}
		declared[s] = true
	}

	used := placeholders(spec.Body)
	var problems []string
	for _, s := range used {
		if !declared[s] {
			problems = append(problems, fmt.Sprintf("undeclared slot %q", s))
		}
	}
	usedSet := make(map[string]bool, len(used))
	for _, s := range used {
		usedSet[s] = true
	}
	for _, s := range spec.Slots {
		if !usedSet[s] {
			problems = append(problems, fmt.Sprintf("unused slot %q", s))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidTemplate, spec.Name, strings.Join(problems, ", "))
	}

	slots := make([]string, len(spec.Slots))
	copy(slots, spec.Slots)
	return &Template{
		name:        spec.Name,
		version:     spec.Version,
		description: spec.Description,
		slots:       slots,
		body:        spec.Body,
	}, nil
}

func placeholders(body string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func (t *Template) Name() string        { return t.name }
func (t *Template) Version() string     { return t.version }
func (t *Template) Description() string { return t.description }

func (t *Template) Slots() []string {
	out := make([]string, len(t.slots))
	copy(out, t.slots)
	return out
}

// Render substitutes every slot. Values are inserted verbatim and are not
// scanned for placeholders again. Extra keys are ignored.
func (t *Template) Render(values map[string]string) (string, error) {
	var missing []string
	for _, s := range t.slots {
		if _, ok := values[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s needs %s", ErrMissingSlot, t.name, strings.Join(missing, ", "))
	}
	return placeholderPattern.ReplaceAllStringFunc(t.body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return values[name]
	}), nil
}

// Registry holds validated templates keyed by name.
type Registry struct {
	version   string
	templates map[string]*Template
}

// Parse builds a Registry from YAML. Every template must validate and the
// required templates must be present.
func Parse(data []byte) (*Registry, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse template catalogue: %w", err)
	}
	reg := &Registry{version: cat.Version, templates: make(map[string]*Template, len(cat.Templates))}
	for _, spec := range cat.Templates {
		if _, dup := reg.templates[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate template %s", ErrInvalidTemplate, spec.Name)
		}
		tpl, err := NewTemplate(spec)
		if err != nil {
			return nil, err
		}
		reg.templates[spec.Name] = tpl
	}
	for _, name := range RequiredTemplates {
		if _, ok := reg.templates[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
	}
	return reg, nil
}

// Load reads a catalogue file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the catalogue compiled into the binary.
func Default() *Registry {
	reg, err := Parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("embedded template catalogue: %v", err))
	}
	return reg
}

// LoadOrDefault reads path when it exists and falls back to the embedded catalogue.
func LoadOrDefault(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func (r *Registry) Version() string { return r.version }

func (r *Registry) Get(name string) (*Template, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// Names lists template names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.templates))
	for name := range r.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render looks a template up and renders it.
func (r *Registry) Render(name string, values map[string]string) (string, error) {
	tpl, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return tpl.Render(values)
}
