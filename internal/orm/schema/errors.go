package schema

import "errors"

var (
	// ErrSealed is returned when a sealed registry or schema is modified
	ErrSealed = errors.New("schema is sealed")

	// ErrNotSealed is returned when a registry is read before it was sealed
	ErrNotSealed = errors.New("registry is not sealed")

	// ErrDuplicateName is returned when a name is registered twice
	ErrDuplicateName = errors.New("duplicate name")

	// ErrInvalidDefinition is returned for incomplete attribute or association definitions
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrUnknownResource is returned when a schema name cannot be resolved
	ErrUnknownResource = errors.New("unknown resource")
)
