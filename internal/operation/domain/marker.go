package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

// MarkerKind tags the type a Marker decodes to.
type MarkerKind string

const (
	KindID     MarkerKind = "id"
	KindDate   MarkerKind = "date"
	KindInt    MarkerKind = "int"
	KindString MarkerKind = "string"
)

// Marker is a typed value inside an operation. Operations are stored as
// plain JSON long before they are applied, so ids and dates travel as
// strings and are only turned back into native values by Decode.
type Marker struct {
	Kind  MarkerKind `json:"kind"`
	Value string     `json:"value"`
}

func ID(id snowflake.ID) Marker {
	return Marker{Kind: KindID, Value: id.String()}
}

func Date(t time.Time) Marker {
	return Marker{Kind: KindDate, Value: t.UTC().Format(time.RFC3339Nano)}
}

func Int(n int64) Marker {
	return Marker{Kind: KindInt, Value: strconv.FormatInt(n, 10)}
}

func String(s string) Marker {
	return Marker{Kind: KindString, Value: s}
}

// Decode materializes the marker into snowflake.ID, time.Time, int64 or
// string.
func (m Marker) Decode() (any, error) {
	switch m.Kind {
	case KindID:
		return snowflake.ParseString(m.Value)
	case KindDate:
		return time.Parse(time.RFC3339Nano, m.Value)
	case KindInt:
		return strconv.ParseInt(m.Value, 10, 64)
	case KindString:
		return m.Value, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarker, m.Kind)
	}
}

func (m Marker) AsID() (snowflake.ID, error) {
	if m.Kind != KindID {
		return 0, fmt.Errorf("%w: want id, got %q", ErrMarkerKind, m.Kind)
	}
	return snowflake.ParseString(m.Value)
}

func (m Marker) AsDate() (time.Time, error) {
	if m.Kind != KindDate {
		return time.Time{}, fmt.Errorf("%w: want date, got %q", ErrMarkerKind, m.Kind)
	}
	return time.Parse(time.RFC3339Nano, m.Value)
}

func (m Marker) AsInt() (int64, error) {
	if m.Kind != KindInt {
		return 0, fmt.Errorf("%w: want int, got %q", ErrMarkerKind, m.Kind)
	}
	return strconv.ParseInt(m.Value, 10, 64)
}

func (m Marker) AsString() (string, error) {
	if m.Kind != KindString {
		return "", fmt.Errorf("%w: want string, got %q", ErrMarkerKind, m.Kind)
	}
	return m.Value, nil
}

// Fields is a set of named markers.
type Fields map[string]Marker

// Decode materializes every marker.
func (f Fields) Decode() (map[string]any, error) {
	out := make(map[string]any, len(f))
	for name, marker := range f {
		value, err := marker.Decode()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}

func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f Fields) ID(name string) (snowflake.ID, error) {
	marker, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return marker.AsID()
}

func (f Fields) Date(name string) (time.Time, error) {
	marker, ok := f[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return marker.AsDate()
}

func (f Fields) Int(name string) (int64, error) {
	marker, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return marker.AsInt()
}

func (f Fields) String(name string) (string, error) {
	marker, ok := f[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return marker.AsString()
}
