package ir

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PropKind discriminates PropValue variants.
type PropKind string

const (
	PropString      PropKind = "string"
	PropInteger     PropKind = "integer"
	PropDecimal     PropKind = "decimal"
	PropBoolean     PropKind = "boolean"
	PropNull        PropKind = "null"
	PropList        PropKind = "list"
	PropMap         PropKind = "map"
	PropStateRef    PropKind = "stateRef"
	PropEventRef    PropKind = "eventRef"
	PropPlatformMap PropKind = "platformMap"
	// PropExpr preserves an expression the front-end could not lower.
	PropExpr PropKind = "expr"
)

// PropValue is a tagged variant: exactly the fields for its Kind are set.
type PropValue struct {
	Kind      PropKind
	Str       string
	Int       int64
	Dec       float64
	Bool      bool
	Items     []PropValue
	Entries   map[string]PropValue
	Ref       string
	Platforms map[string]PropValue
	Fallback  *PropValue
}

// Constructors.

func Str(s string) PropValue  { return PropValue{Kind: PropString, Str: s} }
func Int(i int64) PropValue   { return PropValue{Kind: PropInteger, Int: i} }
func Dec(f float64) PropValue { return PropValue{Kind: PropDecimal, Dec: f} }
func Bool(b bool) PropValue   { return PropValue{Kind: PropBoolean, Bool: b} }
func Null() PropValue         { return PropValue{Kind: PropNull} }
func List(items ...PropValue) PropValue {
	return PropValue{Kind: PropList, Items: items}
}
func Map(entries map[string]PropValue) PropValue {
	return PropValue{Kind: PropMap, Entries: entries}
}
func StateRef(name string) PropValue { return PropValue{Kind: PropStateRef, Ref: name} }
func EventRef(name string) PropValue { return PropValue{Kind: PropEventRef, Ref: name} }
func Expr(src string) PropValue      { return PropValue{Kind: PropExpr, Str: src} }

// PlatformValue builds a platform map. If the entry set does not qualify
// structurally (at least one platform tag, no non-platform keys besides
// "fallback") the value demotes to an ordinary mapping.
func PlatformValue(entries map[string]PropValue) PropValue {
	platforms := make(map[string]PropValue)
	var fallback *PropValue
	tagged := 0
	for k, v := range entries {
		switch {
		case IsPlatformTag(k):
			platforms[k] = v
			tagged++
		case k == PlatformFallback:
			fb := v
			fallback = &fb
		default:
			return Map(entries)
		}
	}
	if tagged == 0 {
		return Map(entries)
	}
	return PropValue{Kind: PropPlatformMap, Platforms: platforms, Fallback: fallback}
}

// IsZero reports whether the value is the zero PropValue (no kind set).
func (v PropValue) IsZero() bool { return v.Kind == "" }

// Equal reports deep structural equality.
func (v PropValue) Equal(o PropValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case PropString, PropExpr:
		return v.Str == o.Str
	case PropInteger:
		return v.Int == o.Int
	case PropDecimal:
		return v.Dec == o.Dec
	case PropBoolean:
		return v.Bool == o.Bool
	case PropNull:
		return true
	case PropStateRef, PropEventRef:
		return v.Ref == o.Ref
	case PropList:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	case PropMap:
		return propMapEqual(v.Entries, o.Entries)
	case PropPlatformMap:
		if !propMapEqual(v.Platforms, o.Platforms) {
			return false
		}
		if (v.Fallback == nil) != (o.Fallback == nil) {
			return false
		}
		return v.Fallback == nil || v.Fallback.Equal(*o.Fallback)
	}
	return false
}

func propMapEqual(a, b map[string]PropValue) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !va.Equal(vb) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the variant as {"kind":...} plus kind-specific fields.
func (v PropValue) MarshalJSON() ([]byte, error) {
	m := map[string]any{"kind": v.Kind}
	switch v.Kind {
	case PropString, PropExpr:
		m["value"] = v.Str
	case PropInteger:
		m["value"] = v.Int
	case PropDecimal:
		m["value"] = v.Dec
	case PropBoolean:
		m["value"] = v.Bool
	case PropNull:
		// kind only
	case PropStateRef, PropEventRef:
		m["ref"] = v.Ref
	case PropList:
		items := v.Items
		if items == nil {
			items = []PropValue{}
		}
		m["items"] = items
	case PropMap:
		entries := v.Entries
		if entries == nil {
			entries = map[string]PropValue{}
		}
		m["entries"] = entries
	case PropPlatformMap:
		m["platforms"] = v.Platforms
		if v.Fallback != nil {
			m["fallback"] = *v.Fallback
		}
	default:
		return nil, fmt.Errorf("marshal: unknown prop kind %q", v.Kind)
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the tagged form.
func (v *PropValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind      PropKind             `json:"kind"`
		Value     json.RawMessage      `json:"value"`
		Ref       string               `json:"ref"`
		Items     []PropValue          `json:"items"`
		Entries   map[string]PropValue `json:"entries"`
		Platforms map[string]PropValue `json:"platforms"`
		Fallback  *PropValue           `json:"fallback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = PropValue{Kind: raw.Kind}
	switch raw.Kind {
	case PropString, PropExpr:
		return json.Unmarshal(raw.Value, &v.Str)
	case PropInteger:
		return json.Unmarshal(raw.Value, &v.Int)
	case PropDecimal:
		return json.Unmarshal(raw.Value, &v.Dec)
	case PropBoolean:
		return json.Unmarshal(raw.Value, &v.Bool)
	case PropNull:
		return nil
	case PropStateRef, PropEventRef:
		v.Ref = raw.Ref
		return nil
	case PropList:
		v.Items = raw.Items
		return nil
	case PropMap:
		v.Entries = raw.Entries
		return nil
	case PropPlatformMap:
		v.Platforms = raw.Platforms
		v.Fallback = raw.Fallback
		return nil
	}
	return fmt.Errorf("unmarshal: unknown prop kind %q", raw.Kind)
}

// SortedKeys returns the sorted key set of a prop mapping. Used by the
// back-ends for stable emission order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InferType derives the semantic type of a literal value; non-literal values
// infer as unknown.
func InferType(v PropValue) SemType {
	switch v.Kind {
	case PropString:
		return TypeString
	case PropInteger:
		return TypeInteger
	case PropDecimal:
		return TypeDecimal
	case PropBoolean:
		return TypeBoolean
	case PropNull:
		t := TypeUnknown
		t.Nullable = true
		return t
	case PropList:
		if len(v.Items) > 0 {
			elem := InferType(v.Items[0])
			return SemType{Kind: "list", Elem: &elem}
		}
		return SemType{Kind: "list", Elem: &SemType{Kind: "unknown"}}
	case PropMap:
		return SemType{Kind: "map", Key: &SemType{Kind: "string"}, Elem: &SemType{Kind: "unknown"}}
	}
	return TypeUnknown
}
