// Event definitions for the live pipeline, organized by domain.
package livebus

import (
	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// Event type keys.
const (
	TypeSourceChanged = "source_changed"
	TypeIRCompiled    = "ir_compiled"
	TypeCompileFailed = "compile_failed"
)

// SourceChanged is emitted when a watched source unit changes on disk.
// Subscribers: the compile pipeline.
type SourceChanged struct {
	Path string `json:"path"`
}

// Type implements the Event interface.
func (m *SourceChanged) Type() string { return TypeSourceChanged }

// IRCompiled is emitted when a source unit lowers successfully.
// Subscribers: session broadcast, logging.
type IRCompiled struct {
	Path    string `json:"path"`
	Dialect string `json:"dialect"`
	Doc     *ir.IR `json:"-"`
	Cached  bool   `json:"cached"`
	// Immediate requests bypassing the session batch window.
	Immediate bool `json:"immediate"`
}

// Type implements the Event interface.
func (m *IRCompiled) Type() string { return TypeIRCompiled }

// CompileFailed is emitted when lowering fails fatally.
// Subscribers: logging, diagnostics surfacing.
type CompileFailed struct {
	Path    string `json:"path"`
	Dialect string `json:"dialect"`
	Reason  string `json:"reason"`
}

// Type implements the Event interface.
func (m *CompileFailed) Type() string { return TypeCompileFailed }
