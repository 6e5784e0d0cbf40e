// Package schema provides the declarative per-resource metadata the query compiler reads.
// It defines attributes with explicit value kinds and nullability, associations between
// resources, and the capability flags (filterable, sortable, always included) that decide
// what a client may ask for.
package schema

import (
	"fmt"
)

// ValueKind represents the value kind of an attribute column
type ValueKind int

const (
	KindString ValueKind = iota
	KindInteger
	KindDecimal
	KindBoolean
	KindDate
	KindDateTime
	KindUUID
)

// String returns the string representation of the value kind
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// IsNumeric returns true for integer and decimal kinds
func (k ValueKind) IsNumeric() bool {
	return k == KindInteger || k == KindDecimal
}

// IsTemporal returns true for date and datetime kinds
func (k ValueKind) IsTemporal() bool {
	return k == KindDate || k == KindDateTime
}

// ParseValueKind converts a string to a ValueKind
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "string", "text":
		return KindString, nil
	case "integer", "int", "bigint":
		return KindInteger, nil
	case "decimal", "float":
		return KindDecimal, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "datetime", "timestamp":
		return KindDateTime, nil
	case "uuid":
		return KindUUID, nil
	default:
		return 0, fmt.Errorf("unknown value kind: %s", s)
	}
}

// AssociationKind represents the cardinality of an association
type AssociationKind int

const (
	BelongsTo AssociationKind = iota
	HasOne
	HasMany
)

// String returns the string representation of the association kind
func (a AssociationKind) String() string {
	switch a {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	default:
		return "unknown"
	}
}

// ParseAssociationKind converts a string to an AssociationKind
func ParseAssociationKind(s string) (AssociationKind, error) {
	switch s {
	case "belongs_to":
		return BelongsTo, nil
	case "has_one":
		return HasOne, nil
	case "has_many":
		return HasMany, nil
	default:
		return 0, fmt.Errorf("unknown association kind: %s", s)
	}
}

// Attribute describes a column a client can filter or sort on
type Attribute struct {
	Name       string
	Column     string // defaults to Name
	Kind       ValueKind
	Nullable   bool
	EnumValues []string
	Filterable Filterability
	Sortable   bool
}

// ColumnName returns the backing column of the attribute
func (a *Attribute) ColumnName() string {
	if a.Column != "" {
		return a.Column
	}
	return a.Name
}

// IsEnum returns true if the attribute only accepts a fixed set of values
func (a *Attribute) IsEnum() bool {
	return len(a.EnumValues) > 0
}

// HasEnumValue reports whether v is one of the attribute's enum values
func (a *Attribute) HasEnumValue(v string) bool {
	for _, allowed := range a.EnumValues {
		if allowed == v {
			return true
		}
	}
	return false
}

// Association describes a link from one resource to another
type Association struct {
	Name           string
	Target         string // target resource name, resolved when the registry is sealed
	Kind           AssociationKind
	ForeignKey     string
	Filterable     bool
	Sortable       bool
	AlwaysIncluded bool
	Serializable   bool

	target *Schema
}

// Collection returns true for one-to-many associations
func (a *Association) Collection() bool {
	return a.Kind == HasMany
}

// TargetSchema returns the resolved target schema, or nil before the registry is sealed
func (a *Association) TargetSchema() *Schema {
	return a.target
}

// PaginationStrategy selects how a resource is paginated
type PaginationStrategy int

const (
	PaginateOffset PaginationStrategy = iota
	PaginateCursor
)

// String returns the string representation of the pagination strategy
func (p PaginationStrategy) String() string {
	switch p {
	case PaginateOffset:
		return "offset"
	case PaginateCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// ParsePaginationStrategy converts a string to a PaginationStrategy
func ParsePaginationStrategy(s string) (PaginationStrategy, error) {
	switch s {
	case "", "offset":
		return PaginateOffset, nil
	case "cursor":
		return PaginateCursor, nil
	default:
		return 0, fmt.Errorf("unknown pagination strategy: %s", s)
	}
}

// Pagination holds the per-resource pagination configuration
type Pagination struct {
	Strategy    PaginationStrategy
	DefaultSize int
	MaxSize     int
}

const (
	DefaultPageSize    = 25
	DefaultMaxPageSize = 100
)

// DefaultPagination returns offset pagination with the package defaults
func DefaultPagination() Pagination {
	return Pagination{
		Strategy:    PaginateOffset,
		DefaultSize: DefaultPageSize,
		MaxSize:     DefaultMaxPageSize,
	}
}
