// Package testutil provides shared test fixtures: canned source units, IR
// builders and a test-scoped logger.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// CounterJSX is the canonical counter component in the JSX dialect.
const CounterJSX = `function Counter(){ const [c,setC]=useState(0);
  return <View><Text text={c}/><Button title="+" onPress={()=>setC(c+1)}/></View>; }`

// CounterDart is the canonical counter widget in the Dart dialect.
const CounterDart = `class Counter extends StatefulWidget {
  const Counter({super.key});

  @override
  State<Counter> createState() => _CounterState();
}

class _CounterState extends State<Counter> {
  int c = 0;

  void setC(int value) {
    setState(() { c = value; });
  }

  @override
  Widget build(BuildContext context) {
    return Column(
      children: [
        Text('$c'),
        ElevatedButton(
          onPressed: () { setState(() { c = c + 1; }); },
          child: const Text('+'),
        ),
      ],
    );
  }
}
`

// TextIR builds a single-text-node document, the smallest useful IR.
func TextIR(id, text string) *ir.IR {
	return &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Roots:         []string{id},
		Nodes: map[string]*ir.Node{
			id: {ID: id, Kind: ir.KindText, Props: map[string]ir.PropValue{"text": ir.Str(text)}},
		},
	}
}

// WriteProject materializes files under a fresh temp dir and returns it.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// Logger adapts testing.T to the structured logger interfaces used across
// the engine.
type Logger struct {
	T *testing.T
}

// NewLogger creates a test logger.
func NewLogger(t *testing.T) *Logger { return &Logger{T: t} }

func (l *Logger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *Logger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *Logger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *Logger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

func (l *Logger) log(level, msg string, kv []any) {
	l.T.Helper()
	l.T.Logf("[%s] %s %v", level, msg, kv)
}
