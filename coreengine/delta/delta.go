// Package delta computes minimal change sets between two IRs.
//
// The diff relies on front-ends minting stable ids for unchanged source
// regions: the comparison is a pair of id-table lookups, never a tree match.
package delta

import (
	"bytes"
	"fmt"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// smallMapLimit bounds the prop count for which the shallow key-by-key
// comparison runs; larger prop maps fall back to canonical serialization.
const smallMapLimit = 10

// SchemaDelta is the change set from one IR to its successor.
type SchemaDelta struct {
	Added    []*ir.Node `json:"added,omitempty"`
	Modified []*ir.Node `json:"modified,omitempty"`
	Removed  []string   `json:"removed,omitempty"`
	// RootsChanged carries the new root sequence when it differs.
	RootsChanged []string `json:"rootsChanged,omitempty"`
	// Tables carries replacement side-tables (state, navigation, ...) when
	// any of them changed; nodes alone cannot express those edits.
	Tables *SideTables `json:"tables,omitempty"`
}

// SideTables is the full replacement set of an IR's side-tables plus its
// metadata. Applied wholesale: side-table edits are rare and small next to
// node churn.
type SideTables struct {
	Metadata   ir.Metadata           `json:"metadata"`
	State      *ir.StateDefinition   `json:"state,omitempty"`
	Navigation *ir.NavigationSchema  `json:"navigation,omitempty"`
	Animations []*ir.AnimationSchema `json:"animations,omitempty"`
	Network    *ir.NetworkSchema     `json:"network,omitempty"`
	Platform   *ir.PlatformSchema    `json:"platform,omitempty"`
}

// Empty reports whether the delta carries no changes.
func (d *SchemaDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0 &&
		d.RootsChanged == nil && d.Tables == nil
}

// Size is the total number of changed entries.
func (d *SchemaDelta) Size() int {
	n := len(d.Added) + len(d.Modified) + len(d.Removed)
	if d.Tables != nil {
		n++
	}
	return n
}

// Diff computes the change set between two IRs. Iteration is over sorted id
// order so output is deterministic.
func Diff(old, new *ir.IR) (*SchemaDelta, error) {
	out := &SchemaDelta{}

	for _, id := range ir.SortedKeys(new.Nodes) {
		newNode := new.Nodes[id]
		oldNode, ok := old.Nodes[id]
		if !ok {
			out.Added = append(out.Added, newNode)
			continue
		}
		same, err := nodesEqual(oldNode, newNode)
		if err != nil {
			return nil, err
		}
		if !same {
			out.Modified = append(out.Modified, newNode)
		}
	}

	for _, id := range ir.SortedKeys(old.Nodes) {
		if _, ok := new.Nodes[id]; !ok {
			out.Removed = append(out.Removed, id)
		}
	}

	if !stringsEqual(old.Roots, new.Roots) {
		out.RootsChanged = append([]string(nil), new.Roots...)
	}

	tablesSame, err := canonicalEqual(sideTablesOf(old), sideTablesOf(new))
	if err != nil {
		return nil, err
	}
	if !tablesSame {
		out.Tables = sideTablesOf(new)
	}
	return out, nil
}

func sideTablesOf(doc *ir.IR) *SideTables {
	return &SideTables{
		Metadata:   doc.Metadata,
		State:      doc.State,
		Navigation: doc.Navigation,
		Animations: doc.Animations,
		Network:    doc.Network,
		Platform:   doc.Platform,
	}
}

// nodesEqual is the structural equality used by the diff: quick checks on
// kind and children length, then shallow prop comparison for small prop
// maps, then the canonical-serialization fallback. Early-exit on first
// mismatch.
func nodesEqual(a, b *ir.Node) (bool, error) {
	if a.Kind != b.Kind || len(a.Children) != len(b.Children) {
		return false, nil
	}
	if !stringsEqual(a.Children, b.Children) {
		return false, nil
	}
	if len(a.Props) != len(b.Props) {
		return false, nil
	}
	if len(a.Props) < smallMapLimit {
		for k, av := range a.Props {
			bv, ok := b.Props[k]
			if !ok || !av.Equal(bv) {
				return false, nil
			}
		}
	} else {
		same, err := canonicalEqual(a.Props, b.Props)
		if err != nil || !same {
			return same, err
		}
	}
	if len(a.Events) != len(b.Events) || len(a.Animations) != len(b.Animations) {
		return false, nil
	}
	if len(a.Events) > 0 || len(a.Animations) > 0 {
		return canonicalEqual(
			struct {
				E []ir.EventBinding `json:"e"`
				A []string          `json:"a"`
			}{a.Events, a.Animations},
			struct {
				E []ir.EventBinding `json:"e"`
				A []string          `json:"a"`
			}{b.Events, b.Animations},
		)
	}
	return true, nil
}

func canonicalEqual(a, b any) (bool, error) {
	ab, err := ir.CanonicalValue(a)
	if err != nil {
		return false, fmt.Errorf("diff canonicalize: %w", err)
	}
	bb, err := ir.CanonicalValue(b)
	if err != nil {
		return false, fmt.Errorf("diff canonicalize: %w", err)
	}
	return bytes.Equal(ab, bb), nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Apply produces the successor IR from a predecessor and a delta. The result
// shares no node pointers with either input. Apply(old, Diff(old, new))
// equals new under canonical serialization for the node tree.
func Apply(old *ir.IR, d *SchemaDelta) *ir.IR {
	out := *old
	out.Nodes = make(map[string]*ir.Node, len(old.Nodes))
	for id, n := range old.Nodes {
		c := *n
		out.Nodes[id] = &c
	}
	for _, id := range d.Removed {
		delete(out.Nodes, id)
	}
	for _, n := range d.Added {
		c := *n
		out.Nodes[n.ID] = &c
	}
	for _, n := range d.Modified {
		c := *n
		out.Nodes[n.ID] = &c
	}
	if d.RootsChanged != nil {
		out.Roots = append([]string(nil), d.RootsChanged...)
	}
	if d.Tables != nil {
		out.Metadata = d.Tables.Metadata
		out.State = d.Tables.State
		out.Navigation = d.Tables.Navigation
		out.Animations = d.Tables.Animations
		out.Network = d.Tables.Network
		out.Platform = d.Tables.Platform
	}
	return &out
}

// PreferDelta reports whether sending the delta beats a full update: true
// when the change count is below the threshold. A threshold of zero always
// forces full updates.
func PreferDelta(d *SchemaDelta, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	return d.Size() < threshold
}
