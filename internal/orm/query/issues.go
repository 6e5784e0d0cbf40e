package query

import (
	"fmt"
	"strings"
)

// Code identifies the kind of a validation issue
type Code string

const (
	CodeInvalidType           Code = "invalid_type"
	CodeFieldNotFilterable    Code = "field_not_filterable"
	CodeFieldNotSortable      Code = "field_not_sortable"
	CodeInvalidOperator       Code = "invalid_operator"
	CodeInvalidValue          Code = "invalid_value"
	CodeInvalidEnumValue      Code = "invalid_enum_value"
	CodeNullNotAllowed        Code = "null_not_allowed"
	CodeInvalidDirection      Code = "invalid_direction"
	CodeInvalidInclude        Code = "invalid_include"
	CodeInvalidPage           Code = "invalid_page"
	CodeInvalidCursor         Code = "invalid_cursor"
	CodeSortNotSupported      Code = "sort_not_supported"
	CodeMaxDepthExceeded      Code = "max_depth_exceeded"
	CodeUnsupportedColumnType Code = "unsupported_column_type"
)

// Path locates the offending input, e.g. ["filter", "due_on", "between"].
// Segments are strings (object keys) or ints (array indexes).
type Path []interface{}

// Append returns a new path with the segments added; the receiver is never modified
func (p Path) Append(segments ...interface{}) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// String renders the path as filter.due_on.between or filter._or[1].status
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch s := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", s)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprintf(&b, "%v", s)
		}
	}
	return b.String()
}

// Issue is a structured, non-fatal validation problem
type Issue struct {
	Code   Code                   `json:"code"`
	Path   Path                   `json:"path"`
	Detail string                 `json:"detail"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// String renders the issue for logs and CLI output
func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Code, i.Path, i.Detail)
}

// Issues is the list of problems found in one request.
// It implements error so the "any issue rejects the request" policy is one call away.
type Issues []Issue

// Error implements the error interface
func (is Issues) Error() string {
	if len(is) == 0 {
		return "no issues"
	}
	if len(is) == 1 {
		return "invalid query: " + is[0].String()
	}
	lines := make([]string, len(is))
	for i, issue := range is {
		lines[i] = "  - " + issue.String()
	}
	return fmt.Sprintf("invalid query (%d issues):\n%s", len(is), strings.Join(lines, "\n"))
}

// Err returns nil when there are no issues, the issues otherwise
func (is Issues) Err() error {
	if len(is) == 0 {
		return nil
	}
	return is
}

// Codes returns the codes in order, for assertions and metrics
func (is Issues) Codes() []Code {
	codes := make([]Code, len(is))
	for i, issue := range is {
		codes[i] = issue.Code
	}
	return codes
}

// Has reports whether an issue with the code exists
func (is Issues) Has(code Code) bool {
	for _, issue := range is {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Collector accumulates issues for one compilation. It is owned by a single request.
type Collector struct {
	issues Issues
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Add records an issue. meta may be nil.
func (c *Collector) Add(code Code, path Path, detail string, meta map[string]interface{}) {
	c.issues = append(c.issues, Issue{
		Code:   code,
		Path:   path.Append(),
		Detail: detail,
		Meta:   meta,
	})
}

// Addf records an issue with a formatted detail
func (c *Collector) Addf(code Code, path Path, meta map[string]interface{}, format string, args ...interface{}) {
	c.Add(code, path, fmt.Sprintf(format, args...), meta)
}

// Issues returns a copy of the collected issues
func (c *Collector) Issues() Issues {
	out := make(Issues, len(c.issues))
	copy(out, c.issues)
	return out
}

// Len returns the number of collected issues
func (c *Collector) Len() int {
	return len(c.issues)
}

// Empty returns true when nothing was collected
func (c *Collector) Empty() bool {
	return len(c.issues) == 0
}
