package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the comparison applied between a column and the search value.
type Mode string

const (
	ModeContains  Mode = "contains"
	ModeIContains Mode = "icontains"
	ModeExact     Mode = "exact"
)

// ParseMode maps a request mode to a Mode. The empty string selects the
// default case-insensitive substring match. The legacy names "like",
// "ilike" and "is" are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "icontains", "ilike":
		return ModeIContains, nil
	case "contains", "like":
		return ModeContains, nil
	case "exact", "is", "eq":
		return ModeExact, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidValue, s)
	}
}

// ColumnResolver maps a logical field name to its physical column.
type ColumnResolver interface {
	Resolve(name string) (string, bool)
}

// Request is the raw caller input for one predicate. A nil Value means the
// parameter was not supplied at all.
type Request struct {
	Field string
	Value *string
	Mode  string
}

// Predicate is a validated, typed comparison ready to be rendered by a
// query backend. It is never mutated after construction.
type Predicate struct {
	Field       string // name used in the request (may be an alias)
	Target      string // logical field the request resolved to
	Column      string // physical column
	Mode        Mode
	Text        string
	Int         int64
	Numeric     bool
	Multivalued bool
}

// Value returns the bound parameter for the predicate.
func (p Predicate) Value() any {
	if p.Numeric {
		return p.Int
	}
	return p.Text
}

// Resolve returns a copy of p bound to the physical column reported by r.
// Unknown targets keep their current column.
func (p Predicate) Resolve(r ColumnResolver) Predicate {
	if r == nil {
		return p
	}
	if col, ok := r.Resolve(p.Target); ok {
		p.Column = col
	}
	return p
}

// BuildPredicate validates req and produces a Predicate. When r is nil the
// logical field name is used as the column. No store access happens here.
func BuildPredicate(r ColumnResolver, req Request) (Predicate, error) {
	if req.Field == "" {
		return Predicate{}, fmt.Errorf("%w: field", ErrMissingParameter)
	}
	if req.Value == nil {
		return Predicate{}, fmt.Errorf("%w: value", ErrMissingParameter)
	}

	f, alias, ok := LookupField(req.Field)
	if !ok {
		return Predicate{}, fmt.Errorf("%w: %q", ErrInvalidField, req.Field)
	}

	mode, err := ParseMode(req.Mode)
	if err != nil {
		return Predicate{}, err
	}

	p := Predicate{
		Field:       req.Field,
		Target:      f.Name,
		Column:      f.Name,
		Mode:        mode,
		Numeric:     f.Numeric,
		Multivalued: f.Multivalued,
	}

	value := *req.Value
	if p.Numeric {
		// Identifier columns only make sense as exact lookups.
		p.Mode = ModeExact
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %s requires an integer, got %q", ErrInvalidValue, req.Field, value)
		}
		p.Int = n
	} else {
		if value == "" {
			return Predicate{}, fmt.Errorf("%w: value", ErrMissingParameter)
		}
		p.Text = value
	}

	if alias != nil && alias.Exact {
		p.Mode = ModeExact
	}

	return p.Resolve(r), nil
}
