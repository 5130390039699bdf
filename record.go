package tyrant

import (
	"sort"
	"strings"

	"github.com/tyrantdb/tyrant/protocol"
)

// columnSep joins column names and values in a table record's wire form.
const columnSep = "\x00"

// Record is one materialized query result. For a table database Columns
// holds the decoded column map; for a plain key/value database Value holds
// the raw stored string. Key is empty when the query projected columns
// (the protocol returns no primary keys in that mode).
type Record struct {
	Key     string
	Value   string
	Columns map[string]string
}

// IsTable reports whether the record carries decoded columns.
func (r Record) IsTable() bool {
	return r.Columns != nil
}

// Column returns the named column, or "" when absent.
func (r Record) Column(name string) string {
	return r.Columns[name]
}

// parseValue decodes a raw stored value: a NUL inside the value marks a
// table record's flattened column sequence.
func parseValue(key, raw string) Record {
	if strings.Contains(raw, columnSep) {
		return Record{Key: key, Columns: DecodeColumns(raw)}
	}
	return Record{Key: key, Value: raw}
}

// DecodeColumns splits a flattened "col1\0val1\0col2\0val2..." sequence
// into a column map. An empty string decodes to an empty map; a trailing
// name without a value maps to "".
func DecodeColumns(s string) map[string]string {
	cols := make(map[string]string)
	if s == "" {
		return cols
	}
	parts := strings.Split(s, columnSep)
	for i := 0; i < len(parts); i += 2 {
		if i+1 < len(parts) {
			cols[parts[i]] = parts[i+1]
		} else {
			cols[parts[i]] = ""
		}
	}
	return cols
}

// EncodeColumns flattens a column map into the wire sequence. Columns are
// emitted in sorted name order so the encoding is deterministic. Names and
// values must not contain NUL.
func EncodeColumns(cols map[string]string) (string, error) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		value := cols[name]
		if strings.Contains(name, columnSep) || strings.Contains(value, columnSep) {
			return "", &protocol.ArgumentError{Message: "column names and values must not contain NUL"}
		}
		if i > 0 {
			b.WriteString(columnSep)
		}
		b.WriteString(name)
		b.WriteString(columnSep)
		b.WriteString(value)
	}
	return b.String(), nil
}

// JoinValues encodes a list-valued column with the given separator, which
// must be a single non-NUL character absent from every element.
func JoinValues(values []string, sep string) (string, error) {
	if len(sep) != 1 || sep == columnSep {
		return "", &protocol.ArgumentError{Message: "list separator must be one non-NUL character"}
	}
	for _, v := range values {
		if strings.Contains(v, sep) {
			return "", &protocol.ArgumentError{Message: "list element contains the separator character"}
		}
	}
	return strings.Join(values, sep), nil
}

// SplitValues decodes a list-valued column. An empty string is an empty
// list.
func SplitValues(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// EncodeBool encodes a boolean column value as presence ("1") or absence
// ("").
func EncodeBool(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// DecodeBool decodes a boolean column value: any non-empty string is true.
func DecodeBool(s string) bool {
	return s != ""
}
