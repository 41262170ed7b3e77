package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// jsonit is the canonical-form codec: SortMapKeys orders every object's
// keys lexicographically and UseNumber keeps integer literals intact
// through the generic re-marshal.
var jsonit = jsoniter.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Canonical serializes the IR to its canonical form: UTF-8 JSON, keys sorted
// lexicographically at every object, no insignificant whitespace. Event sets
// are ordered by event name and animation reference sets by id before
// serialization, per the canonical-ordering invariant. Children order is
// preserved as-is.
func (d *IR) Canonical() ([]byte, error) {
	norm := d.normalized()
	return canonicalBytes(norm)
}

// Hash returns the lowercase hex SHA-256 of the canonical serialization.
func (d *IR) Hash() (string, error) {
	b, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports canonical-serialization equality of two IRs.
func Equal(a, b *IR) (bool, error) {
	ab, err := a.Canonical()
	if err != nil {
		return false, err
	}
	bb, err := b.Canonical()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// EqualModuloMeta compares two IRs ignoring source-span metadata and
// generation timestamps. This is the equality the round-trip laws use.
func EqualModuloMeta(a, b *IR) (bool, error) {
	return Equal(a.StripSourceMeta(), b.StripSourceMeta())
}

// StripSourceMeta returns a copy with source spans, line/column positions,
// diagnostics and the generation timestamp removed. Node ids and structure
// are untouched.
func (d *IR) StripSourceMeta() *IR {
	out := d.shallowCopy()
	out.Metadata.GeneratedAt = time.Time{}
	out.Metadata.SourcePath = ""
	out.Metadata.Diagnostics = nil
	out.Nodes = make(map[string]*Node, len(d.Nodes))
	for id, n := range d.Nodes {
		c := *n
		if c.Meta != nil {
			m := *c.Meta
			m.Line, m.Column, m.SourceSpan, m.Warnings = 0, 0, "", nil
			if m.PropsParam == "" && m.PropsType == "" && len(m.Refs) == 0 {
				c.Meta = nil
			} else {
				c.Meta = &m
			}
		}
		out.Nodes[id] = &c
	}
	return out
}

// normalized returns a copy with canonical set ordering applied.
func (d *IR) normalized() *IR {
	out := d.shallowCopy()
	out.Nodes = make(map[string]*Node, len(d.Nodes))
	for id, n := range d.Nodes {
		c := *n
		if len(c.Events) > 1 {
			events := make([]EventBinding, len(c.Events))
			copy(events, c.Events)
			sort.Slice(events, func(i, j int) bool { return events[i].Event < events[j].Event })
			c.Events = events
		}
		if len(c.Animations) > 1 {
			anims := make([]string, len(c.Animations))
			copy(anims, c.Animations)
			sort.Strings(anims)
			c.Animations = anims
		}
		out.Nodes[id] = &c
	}
	if len(out.Animations) > 1 {
		anims := make([]*AnimationSchema, len(d.Animations))
		copy(anims, d.Animations)
		sort.Slice(anims, func(i, j int) bool { return anims[i].ID < anims[j].ID })
		out.Animations = anims
	}
	return out
}

func (d *IR) shallowCopy() *IR {
	c := *d
	return &c
}

// canonicalBytes marshals v, then re-marshals through a generic value so
// every object's keys come out sorted regardless of struct field order.
// The codec's UseNumber keeps integer literals intact through the round
// trip and its SortMapKeys does the ordering on the final encode.
func canonicalBytes(v any) ([]byte, error) {
	raw, err := jsonit.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := jsonit.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return jsonit.Marshal(generic)
}

// CanonicalValue canonicalizes any JSON-marshalable value. The bundler uses
// it for manifests and schema payloads.
func CanonicalValue(v any) ([]byte, error) {
	return canonicalBytes(v)
}

// Decode parses a canonical (or plain) JSON serialization back into an IR.
func Decode(data []byte) (*IR, error) {
	var d IR
	if err := jsonit.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode ir: %w", err)
	}
	return &d, nil
}
