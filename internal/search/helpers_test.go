package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strPtr(s string) *string { return &s }

// assertPredicateEqual compares two predicates and reports a readable diff.
func assertPredicateEqual(t *testing.T, got, want Predicate) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Predicate mismatch (-want +got):\n%s", diff)
	}
}

// staticResolver maps logical names to fixed physical columns.
type staticResolver map[string]string

func (r staticResolver) Resolve(name string) (string, bool) {
	col, ok := r[name]
	return col, ok
}
