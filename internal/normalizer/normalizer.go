// Package normalizer maps raw OTX pulses onto domain.Pulse.
package normalizer

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"pulse_etl/internal/domain"
)

// Source field names.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldDescription = "description"
	FieldAuthorName  = "author_name"
	FieldTags        = "tags"
	FieldCreated     = "created"
	FieldModified    = "modified"
	FieldReferences  = "references"

	tagNameKey      = "name"
	referenceURLKey = "url"
)

// OTX emits "2024-01-15T10:20:30.123000" without a zone; those are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize converts one raw record. A non-nil error rejects the record and
// matches domain.ErrValidation. Warnings list fields that were dropped to
// their unknown value while the record itself was kept. Absent timestamps
// are unknown (nil) without a warning.
func Normalize(raw domain.RawPulse) (pulse domain.Pulse, warnings []*FieldError, err error) {
	id, err := requiredString(raw, FieldID)
	if err != nil {
		return domain.Pulse{}, nil, err
	}
	name, err := requiredString(raw, FieldName)
	if err != nil {
		return domain.Pulse{}, nil, err
	}

	// An unreadable created rejects the record; an unreadable modified
	// only drops that field.
	created, ferr := optionalTimestamp(raw, FieldCreated)
	if ferr != nil {
		return domain.Pulse{}, nil, ferr
	}
	modified, ferr := optionalTimestamp(raw, FieldModified)
	if ferr != nil {
		warnings = append(warnings, ferr)
	}

	return domain.Pulse{
		ID:          id,
		Name:        name,
		Description: optionalString(raw, FieldDescription),
		AuthorName:  optionalString(raw, FieldAuthorName),
		Tags:        tagSet(raw[FieldTags]),
		Created:     created,
		Modified:    modified,
		References:  referenceList(raw[FieldReferences]),
	}, warnings, nil
}

func requiredString(raw domain.RawPulse, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", &FieldError{Field: field, Reason: ReasonMissing}
	}

	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case json.Number:
		s = val.String()
	default:
		return "", &FieldError{Field: field, Reason: ReasonWrongType, Value: v}
	}

	if s == "" {
		return "", &FieldError{Field: field, Reason: ReasonEmpty}
	}
	return s, nil
}

func optionalString(raw domain.RawPulse, field string) string {
	s, _ := raw[field].(string)
	return strings.TrimSpace(s)
}

func optionalTimestamp(raw domain.RawPulse, field string) (*time.Time, *FieldError) {
	v, ok := raw[field]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &FieldError{Field: field, Reason: ReasonWrongType, Value: v}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return nil, &FieldError{Field: field, Reason: ReasonUnparsable, Value: s}
	}
	return &t, nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO-8601 variants OTX
// uses. The result is always in UTC.
func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// tagSet accepts ["t1", ...] or [{"name": "t1"}, ...] and returns the
// distinct non-empty names, sorted.
func tagSet(v any) []string {
	seen := make(map[string]struct{})
	for _, name := range stringList(v, tagNameKey) {
		seen[name] = struct{}{}
	}

	tags := make([]string, 0, len(seen))
	for name := range seen {
		tags = append(tags, name)
	}
	slices.Sort(tags)
	return tags
}

// referenceList accepts ["https://...", ...] or [{"url": "https://..."}, ...]
// and keeps source order.
func referenceList(v any) []string {
	refs := stringList(v, referenceURLKey)
	if refs == nil {
		return []string{}
	}
	return refs
}

// stringList extracts strings from a list whose elements are either plain
// strings or objects carrying the string under key. Empty and unrecognized
// elements are dropped.
func stringList(v any, key string) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		var s string
		switch val := item.(type) {
		case string:
			s = val
		case map[string]any:
			s, _ = val[key].(string)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
