package registry

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Canonical comparison rules. Values are normalized to one canonical
// representation before equality is tested, independent of how the
// source encoded them:
//
//   - string: Unicode NFC normalization, then surrounding whitespace
//     trimmed. A value that trims to "" is absent.
//   - number: parsed with strconv.ParseFloat and re-rendered with the
//     shortest exact representation, so "1200", "1200.0" and "1.2e3"
//     are equal. Unparseable values fall back to string rules.
//   - date: parsed against the accepted layouts below and rendered as
//     an ISO-8601 calendar date (2006-01-02). Unparseable values fall
//     back to string rules.
//
// Absent compared with absent is equal; absent compared with any
// present value is a change.

// dateLayouts are the accepted input layouts for date fields, tried in
// order. The first is also the canonical output format.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02-01-2006",
}

// canonicalDateFormat is the single output representation for dates.
const canonicalDateFormat = "2006-01-02"

// present reports whether a raw value carries content after trimming.
func present(raw string) bool {
	return strings.TrimSpace(raw) != ""
}

// Canonicalize normalizes a raw value for the given field kind and
// reports whether the value is present at all.
func Canonicalize(kind FieldKind, raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	switch kind {
	case FieldNumber:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64), true
		}
	case FieldDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.Format(canonicalDateFormat), true
			}
		}
	case FieldString:
	}

	return norm.NFC.String(trimmed), true
}

// Equal reports whether two raw values are equal under canonical
// comparison for the given field kind.
func Equal(kind FieldKind, oldRaw, newRaw string) bool {
	oldCanon, oldPresent := Canonicalize(kind, oldRaw)
	newCanon, newPresent := Canonicalize(kind, newRaw)

	if !oldPresent && !newPresent {
		return true
	}
	if oldPresent != newPresent {
		return false
	}
	return oldCanon == newCanon
}
