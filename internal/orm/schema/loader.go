package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a set of resource schemas
type File struct {
	Resources []ResourceDef `yaml:"resources"`
}

// ResourceDef is one resource in a schema file
type ResourceDef struct {
	Name         string           `yaml:"name"`
	Table        string           `yaml:"table,omitempty"`
	PrimaryKey   string           `yaml:"primary_key,omitempty"`
	Pagination   *PaginationDef   `yaml:"pagination,omitempty"`
	Attributes   []AttributeDef   `yaml:"attributes"`
	Associations []AssociationDef `yaml:"associations,omitempty"`
}

// PaginationDef configures pagination for a resource
type PaginationDef struct {
	Strategy    string `yaml:"strategy,omitempty"`
	DefaultSize int    `yaml:"default_size,omitempty"`
	MaxSize     int    `yaml:"max_size,omitempty"`
}

// AttributeDef is one attribute in a schema file
type AttributeDef struct {
	Name       string        `yaml:"name"`
	Column     string        `yaml:"column,omitempty"`
	Kind       string        `yaml:"kind"`
	Nullable   bool          `yaml:"nullable,omitempty"`
	Enum       []string      `yaml:"enum,omitempty"`
	Filterable FilterableDef `yaml:"filterable,omitempty"`
	Sortable   bool          `yaml:"sortable,omitempty"`
}

// AssociationDef is one association in a schema file
type AssociationDef struct {
	Name           string `yaml:"name"`
	Target         string `yaml:"target"`
	Kind           string `yaml:"kind"`
	ForeignKey     string `yaml:"foreign_key,omitempty"`
	Filterable     bool   `yaml:"filterable,omitempty"`
	Sortable       bool   `yaml:"sortable,omitempty"`
	AlwaysIncluded bool   `yaml:"always_included,omitempty"`
	Serializable   *bool  `yaml:"serializable,omitempty"`
}

// FilterableDef accepts either a boolean or a condition on the request context:
//
//	filterable: true
//	filterable: {role: admin}
//	filterable: {context: tenant_admin}
type FilterableDef struct {
	Enabled bool
	Role    string
	Context string
}

// UnmarshalYAML implements yaml.Unmarshaler
func (f *FilterableDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&f.Enabled)
	case yaml.MappingNode:
		var cond struct {
			Role    string `yaml:"role"`
			Context string `yaml:"context"`
		}
		if err := node.Decode(&cond); err != nil {
			return err
		}
		if cond.Role == "" && cond.Context == "" {
			return fmt.Errorf("line %d: filterable condition needs role or context", node.Line)
		}
		f.Enabled = true
		f.Role = cond.Role
		f.Context = cond.Context
		return nil
	default:
		return fmt.Errorf("line %d: filterable must be a boolean or a mapping", node.Line)
	}
}

// Capability converts the definition into a Filterability
func (f FilterableDef) Capability() Filterability {
	if !f.Enabled {
		return FilterNever
	}
	role, key := f.Role, f.Context
	if role == "" && key == "" {
		return FilterAlways
	}
	return FilterIf(func(rc RequestContext) bool {
		if role != "" && !rc.HasRole(role) {
			return false
		}
		if key != "" {
			v, ok := rc.Value(key)
			if !ok {
				return false
			}
			if b, isBool := v.(bool); isBool && !b {
				return false
			}
		}
		return true
	})
}

// LoadFile reads a schema file and returns a sealed registry
func LoadFile(path string) (*Registry, error) {
	return LoadFileWithDefaults(path, DefaultPagination())
}

// LoadFileWithDefaults is LoadFile with the page sizes used by resources that do not set their own
func LoadFileWithDefaults(path string, defaults Pagination) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	return LoadWithDefaults(f, defaults)
}

// Load parses schema YAML and returns a sealed registry
func Load(r io.Reader) (*Registry, error) {
	return LoadWithDefaults(r, DefaultPagination())
}

// LoadWithDefaults parses schema YAML using defaults for unset pagination fields
func LoadWithDefaults(r io.Reader, defaults Pagination) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}

	registry := NewRegistry()
	for _, def := range file.Resources {
		s, err := def.build(defaults)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}

	if err := registry.Seal(); err != nil {
		return nil, err
	}
	return registry, nil
}

// Build converts a resource definition into a Schema
func (def ResourceDef) Build() (*Schema, error) {
	return def.build(DefaultPagination())
}

func (def ResourceDef) build(defaults Pagination) (*Schema, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: resource without name", ErrInvalidDefinition)
	}

	s := NewSchema(def.Name)
	s.Pagination = defaults
	if def.Table != "" {
		s.Table = def.Table
	}
	if def.PrimaryKey != "" {
		s.PrimaryKey = def.PrimaryKey
	}

	if def.Pagination != nil {
		strategy, err := ParsePaginationStrategy(def.Pagination.Strategy)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", def.Name, err)
		}
		s.Pagination.Strategy = strategy
		if def.Pagination.DefaultSize > 0 {
			s.Pagination.DefaultSize = def.Pagination.DefaultSize
		}
		if def.Pagination.MaxSize > 0 {
			s.Pagination.MaxSize = def.Pagination.MaxSize
		}
	}

	for _, a := range def.Attributes {
		kind, err := ParseValueKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("resource %s attribute %s: %w", def.Name, a.Name, err)
		}
		attr := &Attribute{
			Name:       a.Name,
			Column:     a.Column,
			Kind:       kind,
			Nullable:   a.Nullable,
			EnumValues: a.Enum,
			Filterable: a.Filterable.Capability(),
			Sortable:   a.Sortable,
		}
		if err := s.AddAttribute(attr); err != nil {
			return nil, err
		}
	}

	for _, a := range def.Associations {
		kind, err := ParseAssociationKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("resource %s association %s: %w", def.Name, a.Name, err)
		}
		serializable := true
		if a.Serializable != nil {
			serializable = *a.Serializable
		}
		assoc := &Association{
			Name:           a.Name,
			Target:         a.Target,
			Kind:           kind,
			ForeignKey:     a.ForeignKey,
			Filterable:     a.Filterable,
			Sortable:       a.Sortable,
			AlwaysIncluded: a.AlwaysIncluded,
			Serializable:   serializable,
		}
		if err := s.AddAssociation(assoc); err != nil {
			return nil, err
		}
	}

	return s, nil
}
