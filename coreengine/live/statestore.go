package live

import (
	"sync"

	"github.com/lumora-labs/lumora-core/coreengine/bridge"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// NodeStateStore tracks renderer-side node-local state across updates:
// state survives for node ids that persist, is discarded for removed ids,
// and initializes from the IR for added ids. Value migration follows the
// hot-reload contract (carry when type-compatible, reset otherwise).
type NodeStateStore struct {
	mu     sync.Mutex
	states map[string]map[string]any
	last   *ir.IR
}

// NewNodeStateStore creates an empty store.
func NewNodeStateStore() *NodeStateStore {
	return &NodeStateStore{states: map[string]map[string]any{}}
}

// Apply reconciles the store against the document that just rendered.
func (s *NodeStateStore) Apply(doc *ir.IR) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldDef *ir.StateDefinition
	if s.last != nil {
		oldDef = s.last.State
	}

	retained := make(map[string]map[string]any, len(doc.Nodes))
	for id := range doc.Nodes {
		if current, ok := s.states[id]; ok {
			retained[id] = bridge.MigrateState(current, oldDef, doc.State)
			continue
		}
		retained[id] = initialState(doc.State)
	}
	s.states = retained
	s.last = doc
}

func initialState(def *ir.StateDefinition) map[string]any {
	out := map[string]any{}
	if def == nil {
		return out
	}
	for _, v := range def.Variables {
		out[v.Name] = bridge.InitialValue(v)
	}
	return out
}

// Get reads one state value on a node.
func (s *NodeStateStore) Get(nodeID, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[nodeID]
	if !ok {
		return nil, false
	}
	v, ok := state[name]
	return v, ok
}

// Set writes one state value on a node.
func (s *NodeStateStore) Set(nodeID, name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[nodeID]
	if !ok {
		state = map[string]any{}
		s.states[nodeID] = state
	}
	state[name] = value
}

// Len reports the tracked node count.
func (s *NodeStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
