package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// renamedColumnError returns the driver error for a query against a date
// column that was renamed underneath it.
func renamedColumnError(t *testing.T) error {
	t.Helper()
	s := openTestStore(t)
	if _, err := s.DB().Exec(`ALTER TABLE messages RENAME COLUMN date TO msg_date`); err != nil {
		t.Fatalf("rename column: %v", err)
	}
	_, err := s.DB().Exec(`SELECT id, date FROM messages ORDER BY date DESC`)
	if err == nil {
		t.Fatal("expected an error selecting the old column name")
	}
	return err
}

func TestIsNoSuchColumn_RenamedColumn(t *testing.T) {
	err := renamedColumnError(t)

	var driverErr sqlite3.Error
	if !errors.As(err, &driverErr) {
		t.Fatalf("error %T is not a sqlite3.Error", err)
	}

	tests := []struct {
		name string
		err  error
	}{
		{"bare", err},
		{"wrapped", fmt.Errorf("window query: %w", err)},
		{"wrapped twice", fmt.Errorf("search: %w", fmt.Errorf("window query: %w", err))},
		{"pointer", fmt.Errorf("window query: %w", &driverErr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsNoSuchColumn(tt.err) {
				t.Errorf("IsNoSuchColumn(%v) = false", tt.err)
			}
		})
	}
}

func TestIsNoSuchColumn_OtherErrors(t *testing.T) {
	s := openTestStore(t)
	_, missingTable := s.DB().Exec(`SELECT * FROM nowhere`)
	if missingTable == nil {
		t.Fatal("expected an error selecting from a missing table")
	}

	tests := []struct {
		name string
		err  error
	}{
		{"nil", nil},
		{"missing table", missingTable},
		{"plain text mentioning the column", errors.New("no such column: date")},
		{"constraint", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint})},
		{"typed nil pointer", typedNilError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsNoSuchColumn(tt.err) {
				t.Errorf("IsNoSuchColumn(%v) = true", tt.err)
			}
		})
	}
}

// typedNilError hands errors.As a nil *sqlite3.Error.
type typedNilError struct {
	err *sqlite3.Error
}

func (e typedNilError) Error() string {
	return "typed nil error wrapper"
}

func (e typedNilError) As(target any) bool {
	if ptr, ok := target.(**sqlite3.Error); ok {
		*ptr = e.err
		return true
	}
	return false
}
