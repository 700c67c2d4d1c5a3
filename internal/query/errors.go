package query

import (
	"errors"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/wesm/chanvault/internal/store"
)

// schemaErrorSubstrings are driver messages for a reference to a column the
// table does not have. Only consulted when the error carries no typed
// classification.
var schemaErrorSubstrings = []string{
	"no such column",
	"unknown column",
	"referenced column",
	"missing column",
}

// IsSchemaMismatch reports whether err means the query referenced a column
// that no longer exists, i.e. the cached schema mapping is stale.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}
	if store.IsNoSuchColumn(err) {
		return true
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) && duckErr != nil {
		return duckErr.Type == duckdb.ErrorTypeBinder && mentionsMissingColumn(duckErr.Msg)
	}
	return mentionsMissingColumn(err.Error())
}

func mentionsMissingColumn(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range schemaErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
