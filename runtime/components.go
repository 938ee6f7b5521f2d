package runtime

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrInvalidPage  = errors.New("invalid page definition")
	ErrUnknownField = errors.New("unknown field")
)

// Field types understood by hosts.
const (
	FieldText     = "text"
	FieldDate     = "date"
	FieldTime     = "time"
	FieldCheckbox = "checkbox"
	FieldSelect   = "select"
	FieldNumber   = "number"
	FieldTextarea = "textarea"
	FieldEntries  = "entries"
)

// Page is one wizard page: where it is mounted, the step sequence it belongs
// to, the record it edits and where that record lives.
type Page struct {
	ID           string            `yaml:"id" validate:"required"`
	Path         string            `yaml:"path" validate:"required,step_path"`
	Title        string            `yaml:"title"`
	Steps        []string          `yaml:"steps" validate:"required,min=1,dive,step_path"`
	DateField    string            `yaml:"date_field"`
	EndDateField string            `yaml:"end_date_field"`
	AgeField     string            `yaml:"age_field"`
	Initial      map[string]any    `yaml:"initial"`
	Hydrate      string            `yaml:"hydrate"` // locator, may contain {id}
	Save         string            `yaml:"save"`    // save endpoint, PUT appends /{id}
	Sources      map[string]string `yaml:"sources"`
	Derived      []Derivation      `yaml:"derived" validate:"dive"`
	Fields       []Field           `yaml:"fields" validate:"dive"`
	Seed         []Seed            `yaml:"seed" validate:"dive"`
}

type Field struct {
	Name     string  `yaml:"name" validate:"required"`
	Label    string  `yaml:"label"`
	Type     string  `yaml:"type" validate:"oneof=text date time checkbox select number textarea entries"`
	Source   string  `yaml:"source"`
	Required bool    `yaml:"required"`
	Entry    []Field `yaml:"entry" validate:"dive"`
}

// Seed pre-fills an empty repeatable sub-section when the page mounts.
type Seed struct {
	Field    string         `yaml:"field" validate:"required"`
	Count    int            `yaml:"count" validate:"gte=1,lte=50"`
	Template map[string]any `yaml:"template"`
}

// Validate checks the struct tags and the cross references between steps,
// fields, sources and derivations.
func (p *Page) Validate() error {
	p.normalize()

	if err := ValidateConfig(p); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidPage, p.ID, err)
	}
	if !slices.Contains(p.Steps, p.Path) {
		return fmt.Errorf("%w %s: path %s is not one of its steps", ErrInvalidPage, p.ID, p.Path)
	}
	if err := p.validateFields(p.Fields); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidPage, p.ID, err)
	}
	for _, name := range []string{p.DateField, p.EndDateField} {
		if name != "" && len(p.Fields) > 0 && p.Field(name) == nil {
			return fmt.Errorf("%w %s: date field %s: %w", ErrInvalidPage, p.ID, name, ErrUnknownField)
		}
	}
	for _, seed := range p.Seed {
		if f := p.Field(seed.Field); f == nil || f.Type != FieldEntries {
			return fmt.Errorf("%w %s: seed %s is not an entries field", ErrInvalidPage, p.ID, seed.Field)
		}
	}
	if _, err := CompileDerivations(p.Derived); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidPage, p.ID, err)
	}
	return nil
}

func (p *Page) validateFields(fields []Field) error {
	for _, f := range fields {
		switch f.Type {
		case FieldSelect:
			if _, ok := p.Sources[f.Source]; !ok {
				return fmt.Errorf("field %s uses undeclared source %q", f.Name, f.Source)
			}
		case FieldEntries:
			if len(f.Entry) == 0 {
				return fmt.Errorf("entries field %s declares no entry fields", f.Name)
			}
			if err := p.validateFields(f.Entry); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
	}
	return nil
}

// normalize fills in the field type and makes sure every declared field and
// entries list exists in the initial record.
func (p *Page) normalize() {
	if p.Initial == nil {
		p.Initial = map[string]any{}
	}
	normalizeFields(p.Fields)
	for _, f := range p.Fields {
		if _, ok := p.Initial[f.Name]; ok {
			continue
		}
		switch f.Type {
		case FieldEntries:
			p.Initial[f.Name] = []any{}
		case FieldCheckbox:
			p.Initial[f.Name] = false
		default:
			p.Initial[f.Name] = ""
		}
	}
	if p.DateField != "" {
		age := p.AgeField
		if age == "" {
			age = "age"
		}
		if _, ok := p.Initial[age]; !ok {
			p.Initial[age] = ""
		}
	}
}

func normalizeFields(fields []Field) {
	for i := range fields {
		if fields[i].Type == "" {
			fields[i].Type = FieldText
		}
		normalizeFields(fields[i].Entry)
	}
}

// Field looks up a top-level field by name.
func (p *Page) Field(name string) *Field {
	for i := range p.Fields {
		if p.Fields[i].Name == name {
			return &p.Fields[i]
		}
	}
	return nil
}

// EngineConfig builds the wizard configuration for this page.
func (p *Page) EngineConfig(calc AgeFunc) EngineConfig {
	return EngineConfig{
		Initial:      Record(p.Initial).Clone(),
		Steps:        slices.Clone(p.Steps),
		DateField:    p.DateField,
		EndDateField: p.EndDateField,
		AgeField:     p.AgeField,
		CalculateAge: calc,
		Derivations:  slices.Clone(p.Derived),
	}
}

// HydrateLocator returns the hydration locator for a record id, or "" when
// the page has no hydration or the record is new.
func (p *Page) HydrateLocator(id string) string {
	if p.Hydrate == "" || id == "" {
		return ""
	}
	return Locator(p.Hydrate, id)
}

// Locator substitutes {id} in a locator template.
func Locator(template, id string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(id))
}
