package live_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/compiler"
	"github.com/lumora-labs/lumora-core/coreengine/delta"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/live"
	"github.com/lumora-labs/lumora-core/coreengine/testutil"
	"github.com/lumora-labs/lumora-core/livebus"
)

// applyRenderer mirrors the external renderer contract over a held IR.
type applyRenderer struct {
	mu      sync.Mutex
	current *ir.IR
	applies int
}

func (r *applyRenderer) ApplyFull(doc *ir.IR) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = doc
	r.applies++
	return nil
}

func (r *applyRenderer) ApplyDelta(d *delta.SchemaDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = delta.Apply(r.current, d)
	r.applies++
	return nil
}

func (r *applyRenderer) ReportApply(uint64, bool, int) {}

func (r *applyRenderer) doc() *ir.IR {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// TestEditToDeviceLoop drives the full loop: a source edit compiles, the
// bus hands it to the session layer, the delta batches out, and the client
// renders the new tree.
func TestEditToDeviceLoop(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"counter.tsx": testutil.CounterJSX,
	})
	sourcePath := filepath.Join(root, "counter.tsx")

	logger := testutil.NewLogger(t)
	bus := livebus.New(livebus.NoopLogger())
	pipeline := compiler.New(compiler.Options{Workers: 2}, bus, logger)
	defer pipeline.Close()

	server := live.NewServer(live.Config{
		BatchWindow:    15 * time.Millisecond,
		PingInterval:   time.Second,
		PongTimeout:    5 * time.Second,
		DeltaThreshold: 10,
	}, logger, nil, nil)

	// Compiled IRs broadcast to every session.
	bus.Subscribe(livebus.TypeIRCompiled, func(ctx context.Context, event livebus.Event) error {
		compiled := event.(*livebus.IRCompiled)
		server.Broadcast(compiled.Doc, compiled.Immediate)
		return nil
	})

	renderer := &applyRenderer{}
	dialer := func(ctx context.Context) (live.FrameConn, error) {
		clientEnd, serverEnd := net.Pipe()
		go server.HandleConn(live.NewStreamConn(serverEnd), "e2e")
		return live.NewStreamConn(clientEnd), nil
	}
	client := live.NewClient(live.ClientConfig{
		SessionID: "e2e", Token: "t", DeviceID: "d", Platform: "ios",
		PingInterval: time.Second, PongTimeout: 5 * time.Second,
		ReconnectBase: 10 * time.Millisecond,
	}, dialer, renderer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	waitForCond(t, 2*time.Second, client.Connected)

	// First compile: the client receives the initial tree as a full update.
	content, err := os.ReadFile(sourcePath)
	require.NoError(t, err)
	result := pipeline.CompileOne(ctx, compiler.SourceUnit{Path: "counter.tsx", Content: content}, false)
	require.NoError(t, result.Err)

	waitForCond(t, 2*time.Second, func() bool { return renderer.doc() != nil })
	first := renderer.doc()
	eq, err := ir.Equal(first, result.Doc)
	require.NoError(t, err)
	assert.True(t, eq)

	// Edit: the button label changes; the device receives a delta and
	// converges on the new tree without a full reload.
	edited := []byte(`function Counter(){ const [c,setC]=useState(0);
  return <View><Text text={c}/><Button title="++" onPress={()=>setC(c+1)}/></View>; }`)
	result2 := pipeline.CompileOne(ctx, compiler.SourceUnit{Path: "counter.tsx", Content: edited}, false)
	require.NoError(t, result2.Err)

	waitForCond(t, 2*time.Second, func() bool {
		doc := renderer.doc()
		if doc == nil {
			return false
		}
		eq, err := ir.Equal(doc, result2.Doc)
		return err == nil && eq
	})

	// Ids survived the edit, so node-local state would have been preserved.
	var buttonID string
	result.Doc.Walk(func(n *ir.Node) bool {
		if n.Kind == ir.KindButton {
			buttonID = n.ID
		}
		return true
	})
	require.NotEmpty(t, buttonID)
	assert.NotNil(t, result2.Doc.Nodes[buttonID], "stable ids across the edit")

	cancel()
	server.Shutdown()
}

func waitForCond(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
