package query

import (
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Description is what a client may do with one resource, as seen by one request
type Description struct {
	Name         string                   `json:"name"`
	Pagination   PaginationDescription    `json:"pagination"`
	Attributes   []AttributeDescription   `json:"attributes"`
	Associations []AssociationDescription `json:"associations"`
}

// PaginationDescription describes the page parameters a resource accepts
type PaginationDescription struct {
	Strategy    string `json:"strategy"`
	DefaultSize int    `json:"default_size"`
	MaxSize     int    `json:"max_size"`
}

// AttributeDescription describes one attribute
type AttributeDescription struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Nullable   bool     `json:"nullable"`
	Enum       []string `json:"enum,omitempty"`
	Filterable bool     `json:"filterable"`
	Sortable   bool     `json:"sortable"`
	Operators  []string `json:"operators,omitempty"`
}

// AssociationDescription describes one association
type AssociationDescription struct {
	Name           string `json:"name"`
	Target         string `json:"target"`
	Kind           string `json:"kind"`
	Filterable     bool   `json:"filterable"`
	Sortable       bool   `json:"sortable"`
	AlwaysIncluded bool   `json:"always_included"`
	Includable     bool   `json:"includable"`
}

// Describe reports the capabilities of s for the request context rc.
// Conditional filterability is resolved against rc, so two callers may see different answers.
func Describe(s *schema.Schema, rc schema.RequestContext) Description {
	d := Description{
		Name: s.Name,
		Pagination: PaginationDescription{
			Strategy:    s.Pagination.Strategy.String(),
			DefaultSize: s.Pagination.DefaultSize,
			MaxSize:     s.Pagination.MaxSize,
		},
		Attributes:   []AttributeDescription{},
		Associations: []AssociationDescription{},
	}

	for _, attr := range s.Attributes() {
		ad := AttributeDescription{
			Name:       attr.Name,
			Kind:       attr.Kind.String(),
			Nullable:   attr.Nullable,
			Enum:       attr.EnumValues,
			Filterable: attr.Filterable.Allows(rc),
			Sortable:   attr.Sortable,
		}
		if ad.Filterable {
			ops, _ := AllowedOperators(attr.Kind)
			ad.Operators = operatorNames(ops)
		}
		d.Attributes = append(d.Attributes, ad)
	}

	for _, assoc := range s.Associations() {
		d.Associations = append(d.Associations, AssociationDescription{
			Name:           assoc.Name,
			Target:         assoc.Target,
			Kind:           assoc.Kind.String(),
			Filterable:     assoc.Filterable,
			Sortable:       assoc.Sortable,
			AlwaysIncluded: assoc.AlwaysIncluded,
			Includable:     assoc.Serializable,
		})
	}
	return d
}
