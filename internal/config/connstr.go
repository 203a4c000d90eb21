package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Attr is one key/value pair of an ODBC connection string in input order.
type Attr struct {
	Key   string
	Value string
}

// SplitConnectionString parses an ODBC connection string of the form
// "Key1=Value1;Key2={Value;with;semicolons}". Braced values may contain
// "}}" to represent a literal closing brace. Keys keep their spelling;
// callers compare them case-insensitively.
//
//nolint:gocyclo // single pass tokenizer over keys, plain and braced values.
func SplitConnectionString(s string) ([]Attr, error) {
	var attrs []Attr
	i := 0
	for i < len(s) {
		// skip separators and leading blanks
		for i < len(s) && (s[i] == ';' || s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, errors.Errorf("tsodbc: connection string attribute %q has no value", strings.TrimSpace(s[i:]))
		}
		key := strings.TrimSpace(s[i : i+eq])
		if key == "" {
			return nil, errors.Errorf("tsodbc: empty key at offset %d", i)
		}
		i += eq + 1
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		var val strings.Builder
		if i < len(s) && s[i] == '{' {
			i++
			closed := false
			for i < len(s) {
				if s[i] == '}' {
					if i+1 < len(s) && s[i+1] == '}' {
						val.WriteByte('}')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				val.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, errors.Errorf("tsodbc: unterminated brace in value of %q", key)
			}
			for i < len(s) && s[i] != ';' {
				if s[i] != ' ' && s[i] != '\t' {
					return nil, errors.Errorf("tsodbc: unexpected text after braced value of %q", key)
				}
				i++
			}
			attrs = append(attrs, Attr{Key: key, Value: val.String()})
			continue
		}
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			end = len(s) - i
		}
		attrs = append(attrs, Attr{Key: key, Value: strings.TrimSpace(s[i : i+end])})
		i += end
	}
	return attrs, nil
}

// FormatConnectionString renders attrs back into connection string form,
// bracing values that need it. Keys are emitted in the order given.
func FormatConnectionString(attrs []Attr) string {
	var sb strings.Builder
	for _, a := range attrs {
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		if needsBraces(a.Value) {
			sb.WriteByte('{')
			sb.WriteString(strings.ReplaceAll(a.Value, "}", "}}"))
			sb.WriteByte('}')
		} else {
			sb.WriteString(a.Value)
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

func needsBraces(v string) bool {
	return strings.ContainsAny(v, ";{}=") || strings.TrimSpace(v) != v
}

// attrsFromMap orders map entries by key so output is deterministic.
func attrsFromMap(m map[string]string) []Attr {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Attr, 0, len(keys))
	for _, k := range keys {
		out = append(out, Attr{Key: k, Value: m[k]})
	}
	return out
}
