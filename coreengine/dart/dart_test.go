package dart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/jsx"
)

const counterDart = `import 'package:flutter/material.dart';

class Counter extends StatefulWidget {
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

func lowerDart(t *testing.T, path, src string) *ir.IR {
	t.Helper()
	fe := NewFrontend(nil)
	doc, err := fe.Lower(path, []byte(src))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	return doc
}

// =============================================================================
// Lowering
// =============================================================================

func TestLowerStatefulCounter(t *testing.T) {
	doc := lowerDart(t, "counter.dart", counterDart)

	require.Len(t, doc.Roots, 1)
	root := doc.Nodes[doc.Roots[0]]
	assert.Equal(t, "Counter", root.Kind)

	require.NotNil(t, doc.State)
	assert.Equal(t, ir.ScopeLocal, doc.State.Scope)
	require.Len(t, doc.State.Variables, 1)
	v := doc.State.Variables[0]
	assert.Equal(t, "c", v.Name)
	assert.Equal(t, "integer", v.Type.Kind)
	assert.True(t, v.Initial.Equal(ir.Int(0)))
	assert.True(t, v.Mutable)
	assert.Equal(t, "setC", v.Setter)

	view := doc.Nodes[root.Children[0]]
	assert.Equal(t, ir.KindView, view.Kind)
	require.Len(t, view.Children, 2)

	text := doc.Nodes[view.Children[0]]
	assert.Equal(t, ir.KindText, text.Kind)
	assert.True(t, text.Props["text"].Equal(ir.StateRef("c")))

	button := doc.Nodes[view.Children[1]]
	assert.Equal(t, ir.KindButton, button.Kind)
	assert.True(t, button.Props["title"].Equal(ir.Str("+")), "Button child Text folds into title")
	assert.Empty(t, button.Children)
	press := button.Event("press")
	require.NotNil(t, press)
	assert.Contains(t, press.Handler, "setState(() { c = c + 1; })")
}

func TestLowerStatelessWithParams(t *testing.T) {
	src := `class Greeting extends StatelessWidget {
  const Greeting({super.key, required this.name, this.excited = false});

  final String name;
  final bool excited;

  @override
  Widget build(BuildContext context) {
    return Text('$name');
  }
}`
	doc := lowerDart(t, "greeting.dart", src)

	w := doc.Metadata.CustomWidgets["Greeting"]
	require.NotNil(t, w)
	require.Len(t, w.Params, 2)
	assert.Equal(t, "name", w.Params[0].Name)
	assert.True(t, w.Params[0].Required)
	assert.Equal(t, "excited", w.Params[1].Name)
	assert.Equal(t, "false", w.Params[1].Default)

	// name is a widget param, not state: the interpolation stays opaque.
	root := doc.Nodes[doc.Roots[0]]
	text := doc.Nodes[root.Children[0]]
	assert.Equal(t, ir.PropExpr, text.Props["text"].Kind)
}

func TestLowerNullableField(t *testing.T) {
	src := `class Profile extends StatefulWidget {
  const Profile({super.key});
  @override
  State<Profile> createState() => _ProfileState();
}

class _ProfileState extends State<Profile> {
  String? nickname;
  List<String> tags = [];

  @override
  Widget build(BuildContext context) {
    return Column(children: [Text('profile')]);
  }
}`
	doc := lowerDart(t, "profile.dart", src)
	require.NotNil(t, doc.State)
	require.Len(t, doc.State.Variables, 2)

	nick := doc.State.Variable("nickname")
	require.NotNil(t, nick)
	assert.Equal(t, "string", nick.Type.Kind)
	assert.True(t, nick.Type.Nullable)
	assert.Equal(t, ir.PropNull, nick.Initial.Kind)

	tags := doc.State.Variable("tags")
	require.NotNil(t, tags)
	assert.Equal(t, "list", tags.Type.Kind)
	require.NotNil(t, tags.Type.Elem)
	assert.Equal(t, "string", tags.Type.Elem.Kind)
}

func TestLowerPlatformChainScenario(t *testing.T) {
	src := `class Native extends StatelessWidget {
  const Native({super.key});

  @override
  Widget build(BuildContext context) {
    if (Platform.isIOS) { A(); } else if (Platform.isAndroid) { B(); } else { C(); }
    return Column(children: [Text('x')]);
  }
}`
	doc := lowerDart(t, "native.dart", src)
	require.NotNil(t, doc.Platform)
	require.Len(t, doc.Platform.Blocks, 1)
	block := doc.Platform.Blocks[0]
	require.Len(t, block.Implementations, 2)
	assert.Equal(t, []string{"ios"}, block.Implementations[0].Platforms)
	assert.Equal(t, "A();", block.Implementations[0].Code.Source)
	assert.Equal(t, "dart", block.Implementations[0].Code.Language)
	assert.Equal(t, []string{"android"}, block.Implementations[1].Platforms)
	require.NotNil(t, block.Fallback)
	assert.Equal(t, "C();", block.Fallback.Source)
}

func TestLowerDeterminism(t *testing.T) {
	a := lowerDart(t, "counter.dart", counterDart)
	b, err := NewFrontend(nil).Lower("counter.dart", []byte(counterDart))
	require.NoError(t, err)
	ab, err := a.Canonical()
	require.NoError(t, err)
	bb, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestLowerOpaqueWidgetArg(t *testing.T) {
	src := `class Fancy extends StatelessWidget {
  const Fancy({super.key});

  @override
  Widget build(BuildContext context) {
    return Column(children: [Text('hi', style: TextStyle(fontSize: 14))]);
  }
}`
	doc := lowerDart(t, "fancy.dart", src)
	root := doc.Nodes[doc.Roots[0]]
	col := doc.Nodes[root.Children[0]]
	text := doc.Nodes[col.Children[0]]
	style, ok := text.Props["style"]
	require.True(t, ok)
	assert.Equal(t, ir.PropExpr, style.Kind)
	assert.Contains(t, style.Str, "TextStyle(fontSize: 14)")
}

// =============================================================================
// Emission and round trips
// =============================================================================

func TestEmitCounterFromDartIR(t *testing.T) {
	doc := lowerDart(t, "counter.dart", counterDart)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "class Counter extends StatefulWidget")
	assert.Contains(t, out, "class _CounterState extends State<Counter>")
	assert.Contains(t, out, "int c = 0;")
	assert.Contains(t, out, "void setC(int value)")
	assert.Contains(t, out, "setState(() { c = value; });")
	assert.Contains(t, out, "Text('$c')")
	assert.Contains(t, out, "setState(() { c = c + 1; })")
}

func TestDartRoundTrip(t *testing.T) {
	doc := lowerDart(t, "counter.dart", counterDart)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	relowered := lowerDart(t, "counter.dart", out)
	eq, err := ir.EqualModuloMeta(doc, relowered)
	require.NoError(t, err)
	if !eq {
		a, _ := doc.StripSourceMeta().Canonical()
		b, _ := relowered.StripSourceMeta().Canonical()
		t.Fatalf("round trip changed the IR:\n old: %s\n new: %s", a, b)
	}
}

func TestScenarioJSXToDartCounter(t *testing.T) {
	jsxSrc := `function Counter(){ const [c,setC]=useState(0);
  return <View><Text text={c}/><Button title="+" onPress={()=>setC(c+1)}/></View>; }`

	doc, err := jsx.NewFrontend(nil).Lower("counter.tsx", []byte(jsxSrc))
	require.NoError(t, err)

	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	// The stateful widget carries the field and the press handler mutates it
	// through setState.
	assert.Contains(t, out, "class Counter extends StatefulWidget")
	assert.Contains(t, out, "int c = 0;")
	assert.Contains(t, out, "setState(() { c = c+1; });")
	assert.Contains(t, out, "Text('$c')")
	assert.Contains(t, out, "Text('+')")
}

func TestScenarioDartPlatformToJSX(t *testing.T) {
	src := `class Native extends StatelessWidget {
  const Native({super.key});

  @override
  Widget build(BuildContext context) {
    if (Platform.isIOS) { A(); } else if (Platform.isAndroid) { B(); } else { C(); }
    return Column(children: [Text('x')]);
  }
}`
	doc := lowerDart(t, "native.dart", src)
	out, err := jsx.NewEmitter(jsx.DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	assert.Contains(t, out, `if (Platform.OS === "ios") {`)
	assert.Contains(t, out, "A();")
	assert.Contains(t, out, `} else if (Platform.OS === "android") {`)
	assert.Contains(t, out, "B();")
	assert.Contains(t, out, "} else {")
	assert.Contains(t, out, "C();")
}

func TestEmitMissingFallbackWarning(t *testing.T) {
	src := `class Native extends StatelessWidget {
  const Native({super.key});

  @override
  Widget build(BuildContext context) {
    if (Platform.isIOS) { A(); }
    return Column(children: [Text('x')]);
  }
}`
	doc := lowerDart(t, "native.dart", src)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "// WARNING: no fallback branch declared")
}

func TestEmitStripDebug(t *testing.T) {
	doc := lowerDart(t, "counter.dart", counterDart)
	// Inject a debug call into the handler payload.
	doc.Walk(func(n *ir.Node) bool {
		if n.Kind == ir.KindButton {
			n.Events[0].Handler = "() {\n  print('tap');\n  setState(() { c = c + 1; });\n}"
		}
		return true
	})
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)
	assert.NotContains(t, out, "print('tap')")

	raw, err := NewEmitter(EmitOptions{}).Emit(doc)
	require.NoError(t, err)
	assert.Contains(t, raw, "print('tap')")
}

func TestClosureParams(t *testing.T) {
	assert.Nil(t, closureParams("doThing"))
	assert.Equal(t, []string{"value"}, closureParams("(value) { use(value); }"))
	assert.Equal(t, []string{"value"}, closureParams("(String value) { use(value); }"))
	assert.Equal(t, []string{"a", "b"}, closureParams("(a, b) { use(a, b); }"))
}

func TestDartTypeMapping(t *testing.T) {
	tests := []struct {
		dart     string
		nullable bool
		kind     string
	}{
		{"int", false, "integer"},
		{"double", false, "decimal"},
		{"String", true, "string"},
		{"bool", false, "boolean"},
		{"List<int>", false, "list"},
		{"Map<String, int>", false, "map"},
		{"Widget", false, "unknown"},
	}
	for _, tt := range tests {
		got := dartTypeToSem(tt.dart, tt.nullable)
		assert.Equal(t, tt.kind, got.Kind, tt.dart)
		assert.Equal(t, tt.nullable, got.Nullable, tt.dart)
	}

	// Round trip back to Dart annotations.
	assert.Equal(t, "int", semToDartType(ir.TypeInteger))
	assert.Equal(t, "String?", semToDartType(ir.SemType{Kind: "string", Nullable: true}))
	assert.Equal(t, "List<String>", semToDartType(ir.SemType{Kind: "list", Elem: &ir.SemType{Kind: "string"}}))
}
