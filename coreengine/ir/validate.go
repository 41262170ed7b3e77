package ir

import (
	"fmt"

	"github.com/blang/semver"
	"github.com/hashicorp/go-multierror"
)

// InvariantError is a fatal violation of the IR invariants. It aborts the
// current IR: callers must discard the document.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ir invariant %s violated: %s", e.Invariant, e.Detail)
}

func invariant(name, format string, args ...any) error {
	return &InvariantError{Invariant: name, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks every IR invariant:
//
//  1. node ids unique and consistent with the arena key
//  2. acyclicity: nodes form a rooted forest
//  3. state referential integrity (StateRef / EventRef resolve)
//  4. animation reference integrity
//  5. route name and path uniqueness
//  6. platform tag closedness (enforced structurally by PropValue)
//  7. canonical ordering (a serialization property, not checked here)
//  8. schema-version covers the minimum required by contained constructs
//
// All violations are collected; a non-nil result means the IR is invalid.
func (d *IR) Validate() error {
	var result *multierror.Error

	// 1. Arena key consistency doubles as the uniqueness check: the arena is
	// a map, so two nodes claiming one id cannot coexist; a node whose ID
	// field disagrees with its key indicates a cloning bug.
	for id, n := range d.Nodes {
		if n == nil {
			result = multierror.Append(result, invariant("node-id", "nil node at id %q", id))
			continue
		}
		if n.ID != id {
			result = multierror.Append(result, invariant("node-id", "node keyed %q carries id %q", id, n.ID))
		}
		seen := map[string]bool{}
		for _, ev := range n.Events {
			if seen[ev.Event] {
				result = multierror.Append(result, invariant("event-unique", "node %q binds event %q twice", id, ev.Event))
			}
			seen[ev.Event] = true
		}
	}

	// 2. Acyclicity and single-parent: depth-first from roots, grey marking.
	if err := d.checkAcyclic(); err != nil {
		result = multierror.Append(result, err)
	}

	// 3. Referential integrity.
	for _, n := range d.Nodes {
		for key, v := range n.Props {
			if err := d.checkRefs(n, key, v); err != nil {
				result = multierror.Append(result, err)
			}
		}
		for _, c := range n.Children {
			if d.Nodes[c] == nil {
				result = multierror.Append(result, invariant("child-ref", "node %q references missing child %q", n.ID, c))
			}
		}
		// 4. Animation references.
		for _, animID := range n.Animations {
			if d.Animation(animID) == nil {
				result = multierror.Append(result, invariant("animation-ref", "node %q references missing animation %q", n.ID, animID))
			}
		}
	}

	// 5. Route uniqueness.
	if d.Navigation != nil {
		names := map[string]bool{}
		paths := map[string]bool{}
		for _, r := range d.Navigation.Routes {
			if names[r.Name] {
				result = multierror.Append(result, invariant("route-unique", "duplicate route name %q", r.Name))
			}
			if paths[r.Path] {
				result = multierror.Append(result, invariant("route-unique", "duplicate route path %q", r.Path))
			}
			names[r.Name] = true
			paths[r.Path] = true
		}
	}

	// 8. Schema version.
	if err := d.checkVersion(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (d *IR) checkAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(d.Nodes))
	parent := make(map[string]string, len(d.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return invariant("acyclic", "cycle through node %q", id)
		case black:
			return nil
		}
		color[id] = grey
		n := d.Nodes[id]
		if n != nil {
			for _, c := range n.Children {
				if p, ok := parent[c]; ok && p != id {
					return invariant("acyclic", "node %q has two parents (%q, %q)", c, p, id)
				}
				parent[c] = id
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, root := range d.Roots {
		if err := visit(root); err != nil {
			return err
		}
	}
	return nil
}

func (d *IR) checkRefs(n *Node, key string, v PropValue) error {
	switch v.Kind {
	case PropStateRef:
		if d.State.Variable(v.Ref) == nil {
			return invariant("state-ref", "node %q prop %q references undeclared state %q", n.ID, key, v.Ref)
		}
	case PropEventRef:
		if n.Event(v.Ref) == nil && !d.declaredHandler(v.Ref) {
			return invariant("event-ref", "node %q prop %q references undeclared handler %q", n.ID, key, v.Ref)
		}
	case PropList:
		for _, item := range v.Items {
			if err := d.checkRefs(n, key, item); err != nil {
				return err
			}
		}
	case PropMap:
		for _, item := range v.Entries {
			if err := d.checkRefs(n, key, item); err != nil {
				return err
			}
		}
	case PropPlatformMap:
		for _, item := range v.Platforms {
			if err := d.checkRefs(n, key, item); err != nil {
				return err
			}
		}
		if v.Fallback != nil {
			return d.checkRefs(n, key, *v.Fallback)
		}
	}
	return nil
}

// declaredHandler reports whether name is a handler declared anywhere in the
// component: an event binding on any node, a state setter, or a preserved
// helper binding.
func (d *IR) declaredHandler(name string) bool {
	if d.State != nil {
		for _, v := range d.State.Variables {
			if v.Setter == name {
				return true
			}
		}
	}
	if _, ok := d.Metadata.Helpers[name]; ok {
		return true
	}
	for _, n := range d.Nodes {
		for _, ev := range n.Events {
			if ev.Handler == name {
				return true
			}
		}
	}
	return false
}

// MinVersion returns the minimum schema version required by the constructs
// the IR contains. Newer construct families raise the floor.
func (d *IR) MinVersion() semver.Version {
	v := semver.MustParse("1.0.0")
	if d.Platform != nil && len(d.Platform.Blocks) > 0 {
		// Platform code blocks entered the schema at 1.0.0; nothing newer yet.
		_ = v
	}
	return v
}

func (d *IR) checkVersion() error {
	declared, err := semver.Parse(d.SchemaVersion)
	if err != nil {
		return invariant("schema-version", "unparsable schema version %q", d.SchemaVersion)
	}
	if declared.LT(d.MinVersion()) {
		return invariant("schema-version", "declared %s below required %s", declared, d.MinVersion())
	}
	return nil
}
