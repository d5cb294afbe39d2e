// Package normalize turns service response objects of any shape into plain
// maps of strings, numbers, booleans, slices and nested maps.
//
// Normalization tries three stages in order and never fails:
//
//  1. Export: the value's own structured export (a map already, an AsMap
//     method, or a protobuf message rendered through protojson).
//  2. Parse: a textual form of the value (its bytes, its text marshaling, or
//     its JSON encoding) parsed back as a JSON object.
//  3. Raw: the value's string form wrapped as {"raw": ...}.
package normalize

import (
	"encoding"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Stage names the step that produced a normalized value.
type Stage int

const (
	StageExport Stage = iota + 1
	StageParse
	StageRaw
)

func (s Stage) String() string {
	switch s {
	case StageExport:
		return "export"
	case StageParse:
		return "parse"
	case StageRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// RawKey holds the string form of values that could not be structured.
const RawKey = "raw"

// Exporter is implemented by response objects with a structured export.
type Exporter interface {
	AsMap() map[string]any
}

// Normalize converts v into a plain map.
func Normalize(v any) map[string]any {
	out, _ := NormalizeStage(v)
	return out
}

// NormalizeStage converts v into a plain map and reports which stage
// succeeded.
func NormalizeStage(v any) (map[string]any, Stage) {
	if out, ok := export(v); ok {
		return out, StageExport
	}
	if out, ok := parse(v); ok {
		return out, StageParse
	}
	return map[string]any{RawKey: describe(v)}, StageRaw
}

func export(v any) (out map[string]any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	switch value := v.(type) {
	case map[string]any:
		if value == nil {
			return nil, false
		}
		return value, true
	case Exporter:
		exported := value.AsMap()
		if exported == nil {
			return nil, false
		}
		return exported, true
	case proto.Message:
		data, err := protojson.Marshal(value)
		if err != nil {
			return nil, false
		}
		return decodeObject(data)
	}
	return nil, false
}

func parse(v any) (out map[string]any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	text, ok := textual(v)
	if !ok {
		return nil, false
	}
	return decodeObject(text)
}

func textual(v any) ([]byte, bool) {
	switch value := v.(type) {
	case nil:
		return nil, false
	case []byte:
		return value, true
	case json.RawMessage:
		return value, true
	case string:
		return []byte(value), true
	case json.Marshaler:
		data, err := value.MarshalJSON()
		return data, err == nil
	case encoding.TextMarshaler:
		data, err := value.MarshalText()
		return data, err == nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}

func decodeObject(data []byte) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func describe(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// Slice normalizes every element of values.
func Slice[T any](values []T) []map[string]any {
	out := make([]map[string]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}
