package registry

// Record is one row of a snapshot: a mapping from declared field name
// to its raw string value as ingested. A missing entry and a value
// that trims to the empty string are both treated as absent.
type Record map[string]string

// Value returns the raw value of a field and whether it is present.
func (r Record) Value(field string) (string, bool) {
	raw, ok := r[field]
	if !ok {
		return "", false
	}
	if !present(raw) {
		return "", false
	}
	return raw, true
}

// Key returns the record's unique key under the given schema.
// The empty string means the key is absent.
func (r Record) Key(s *Schema) string {
	raw, ok := r.Value(s.KeyField())
	if !ok {
		return ""
	}
	canonical, _ := Canonicalize(FieldString, raw)
	return canonical
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
