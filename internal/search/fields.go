// Package search defines the searchable message fields and turns a
// field/value/mode request into a typed, parameter-safe predicate.
package search

import "sort"

// Field describes one logical column of the message table.
type Field struct {
	Name        string `json:"name"`
	Numeric     bool   `json:"numeric,omitempty"`
	Multivalued bool   `json:"multivalued,omitempty"`
	Date        bool   `json:"date,omitempty"`
}

// Logical names of the two time columns. Their physical names are resolved
// at runtime by the schema registry.
const (
	FieldDate       = "date"
	FieldInsertDate = "insert_date"
)

// fields is the ordered output projection of every search result.
var fields = []Field{
	{Name: "id"},
	{Name: "chat_id", Numeric: true},
	{Name: "chat_name"},
	{Name: "username"},
	{Name: "sender_chat_id"},
	{Name: "title"},
	{Name: FieldDate, Date: true},
	{Name: FieldInsertDate, Date: true},
	{Name: "document_present"},
	{Name: "document_name"},
	{Name: "document_type"},
	{Name: "document_size"},
	{Name: "msg_fwd"},
	{Name: "msg_fwd_username"},
	{Name: "msg_fwd_title"},
	{Name: "msg_fwd_id"},
	{Name: "text"},
	{Name: "lang"},
	{Name: "urls", Multivalued: true},
	{Name: "hashtags", Multivalued: true},
}

// Alias is an alternate request name for a logical field. Exact aliases are
// identifier lookups: always numeric, always compared with ModeExact.
type Alias struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	Exact  bool   `json:"exact,omitempty"`
}

var aliases = []Alias{
	{Name: "channel_id", Target: "chat_id", Exact: true},
	{Name: "channel_name", Target: "chat_name"},
	{Name: "user_id", Target: "sender_chat_id", Exact: true},
	{Name: "sender_id", Target: "sender_chat_id"},
	{Name: "msg_id", Target: "id", Exact: true},
	{Name: "links", Target: "urls"},
	{Name: "tags", Target: "hashtags"},
	{Name: "language", Target: "lang"},
}

var (
	fieldIndex = make(map[string]Field, len(fields))
	aliasIndex = make(map[string]Alias, len(aliases))
)

func init() {
	for _, f := range fields {
		fieldIndex[f.Name] = f
	}
	for _, a := range aliases {
		aliasIndex[a.Name] = a
	}
}

// Fields returns the logical fields in projection order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Aliases returns the alias table sorted by name.
func Aliases() []Alias {
	out := make([]Alias, len(aliases))
	copy(out, aliases)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupField returns the logical field a request name refers to, following
// aliases. The second result is the alias entry when name is an alias.
func LookupField(name string) (Field, *Alias, bool) {
	if f, ok := fieldIndex[name]; ok {
		return f, nil, true
	}
	a, ok := aliasIndex[name]
	if !ok {
		return Field{}, nil, false
	}
	f := fieldIndex[a.Target]
	if a.Exact {
		f.Numeric = true
	}
	return f, &a, true
}

// IsKnown reports whether name is a logical field or alias.
func IsKnown(name string) bool {
	_, _, ok := LookupField(name)
	return ok
}
