package schema

import (
	"fmt"
)

// Schema is the metadata of one resource type
type Schema struct {
	Name       string
	Table      string
	PrimaryKey string
	Pagination Pagination

	attributes   map[string]*Attribute
	associations map[string]*Association
	attrOrder    []string
	assocOrder   []string
	sealed       bool
}

// NewSchema creates a new Schema with a snake_case plural table name and an "id" primary key
func NewSchema(name string) *Schema {
	return &Schema{
		Name:         name,
		Table:        toTableName(name),
		PrimaryKey:   "id",
		Pagination:   DefaultPagination(),
		attributes:   make(map[string]*Attribute),
		associations: make(map[string]*Association),
	}
}

// AddAttribute registers an attribute. Names are unique across attributes and associations.
func (s *Schema) AddAttribute(attr *Attribute) error {
	if s.sealed {
		return fmt.Errorf("%w: %s", ErrSealed, s.Name)
	}
	if attr == nil || attr.Name == "" {
		return fmt.Errorf("%w: attribute on %s has no name", ErrInvalidDefinition, s.Name)
	}
	if s.has(attr.Name) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, s.Name, attr.Name)
	}
	s.attributes[attr.Name] = attr
	s.attrOrder = append(s.attrOrder, attr.Name)
	return nil
}

// AddAssociation registers an association. The target is resolved when the registry is sealed.
func (s *Schema) AddAssociation(assoc *Association) error {
	if s.sealed {
		return fmt.Errorf("%w: %s", ErrSealed, s.Name)
	}
	if assoc == nil || assoc.Name == "" {
		return fmt.Errorf("%w: association on %s has no name", ErrInvalidDefinition, s.Name)
	}
	if assoc.Target == "" {
		return fmt.Errorf("%w: association %s.%s has no target", ErrInvalidDefinition, s.Name, assoc.Name)
	}
	if s.has(assoc.Name) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, s.Name, assoc.Name)
	}
	s.associations[assoc.Name] = assoc
	s.assocOrder = append(s.assocOrder, assoc.Name)
	return nil
}

// MustAttribute is AddAttribute for static definitions; it panics on error
func (s *Schema) MustAttribute(attr *Attribute) *Schema {
	if err := s.AddAttribute(attr); err != nil {
		panic(err)
	}
	return s
}

// MustAssociation is AddAssociation for static definitions; it panics on error
func (s *Schema) MustAssociation(assoc *Association) *Schema {
	if err := s.AddAssociation(assoc); err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) has(name string) bool {
	_, isAttr := s.attributes[name]
	_, isAssoc := s.associations[name]
	return isAttr || isAssoc
}

// Attribute returns the attribute with the given name
func (s *Schema) Attribute(name string) (*Attribute, bool) {
	attr, ok := s.attributes[name]
	return attr, ok
}

// Association returns the association with the given name
func (s *Schema) Association(name string) (*Association, bool) {
	assoc, ok := s.associations[name]
	return assoc, ok
}

// Attributes returns the attributes in declaration order
func (s *Schema) Attributes() []*Attribute {
	result := make([]*Attribute, 0, len(s.attrOrder))
	for _, name := range s.attrOrder {
		result = append(result, s.attributes[name])
	}
	return result
}

// Associations returns the associations in declaration order
func (s *Schema) Associations() []*Association {
	result := make([]*Association, 0, len(s.assocOrder))
	for _, name := range s.assocOrder {
		result = append(result, s.associations[name])
	}
	return result
}

// PrimaryKeyAttribute returns the attribute backing the primary key
func (s *Schema) PrimaryKeyAttribute() (*Attribute, error) {
	for _, attr := range s.attributes {
		if attr.ColumnName() == s.PrimaryKey {
			return attr, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no attribute for primary key %q", ErrInvalidDefinition, s.Name, s.PrimaryKey)
}

// Sealed returns true once the owning registry has been sealed
func (s *Schema) Sealed() bool {
	return s.sealed
}

// toTableName converts a resource name to a table name (snake_case plural)
func toTableName(resourceName string) string {
	return pluralize(toSnakeCase(resourceName))
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[len(s)-1] {
	case 's', 'x', 'z':
		return s + "es"
	case 'y':
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
