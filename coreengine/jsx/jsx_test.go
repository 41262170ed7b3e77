package jsx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

const counterSrc = `function Counter(){ const [c,setC]=useState(0);
  return <View><Text text={c}/><Button title="+" onPress={()=>setC(c+1)}/></View>; }`

func lower(t *testing.T, path, src string) *ir.IR {
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

func TestLowerCounter(t *testing.T) {
	doc := lower(t, "counter.tsx", counterSrc)

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

	require.Len(t, root.Children, 1)
	view := doc.Nodes[root.Children[0]]
	assert.Equal(t, ir.KindView, view.Kind)
	require.Len(t, view.Children, 2)

	text := doc.Nodes[view.Children[0]]
	assert.Equal(t, ir.KindText, text.Kind)
	assert.True(t, text.Props["text"].Equal(ir.StateRef("c")))

	button := doc.Nodes[view.Children[1]]
	assert.Equal(t, ir.KindButton, button.Kind)
	assert.True(t, button.Props["title"].Equal(ir.Str("+")))
	press := button.Event("press")
	require.NotNil(t, press)
	assert.Contains(t, press.Handler, "setC(c+1)")
}

func TestLowerDeterminism(t *testing.T) {
	a := lower(t, "counter.tsx", counterSrc)
	b := lower(t, "counter.tsx", counterSrc)
	ab, err := a.Canonical()
	require.NoError(t, err)
	bb, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, ab, bb, "lowering must be byte-for-byte deterministic")

	// A fresh front-end (cold caches) produces identical bytes too.
	c, err := NewFrontend(nil).Lower("counter.tsx", []byte(counterSrc))
	require.NoError(t, err)
	cb, err := c.Canonical()
	require.NoError(t, err)
	assert.Equal(t, ab, cb)
}

func TestLowerArrowAndClassComponents(t *testing.T) {
	t.Run("arrow concise body", func(t *testing.T) {
		doc := lower(t, "a.tsx", `const Hello = () => (<Text text="hi"/>);`)
		require.Len(t, doc.Roots, 1)
		assert.Equal(t, "Hello", doc.Nodes[doc.Roots[0]].Kind)
	})

	t.Run("class component render", func(t *testing.T) {
		doc := lower(t, "c.tsx", `class Banner extends Component {
  render() { return <View><Text>Welcome</Text></View>; }
}`)
		require.Len(t, doc.Roots, 1)
		root := doc.Nodes[doc.Roots[0]]
		assert.Equal(t, "Banner", root.Kind)
		view := doc.Nodes[root.Children[0]]
		text := doc.Nodes[view.Children[0]]
		inner := doc.Nodes[text.Children[0]]
		assert.True(t, inner.Props["text"].Equal(ir.Str("Welcome")))
	})
}

func TestLowerDestructuredProps(t *testing.T) {
	doc := lower(t, "g.tsx", `function Greeting({ name, emphasis = false }) {
  return <Text text={name}/>;
}`)
	w := doc.Metadata.CustomWidgets["Greeting"]
	require.NotNil(t, w)
	require.Len(t, w.Params, 2)
	assert.Equal(t, "name", w.Params[0].Name)
	assert.Equal(t, "emphasis", w.Params[1].Name)
	assert.Equal(t, "false", w.Params[1].Default)

	// name is not state, so the braced reference stays opaque.
	root := doc.Nodes[doc.Roots[0]]
	text := doc.Nodes[root.Children[0]]
	assert.Equal(t, ir.PropExpr, text.Props["text"].Kind)
}

func TestLowerHooks(t *testing.T) {
	src := `function Widget() {
  const [items, setItems] = useState([]);
  const theme = useContext(ThemeContext);
  const listRef = useRef(null);
  const total = useMemo(() => items.length, [items]);
  useEffect(() => { subscribe(); return () => { unsubscribe(); }; }, []);
  useEffect(() => { refresh(); }, []);
  useEffect(() => { log(items); });
  return <ListView data={items}/>;
}`
	doc := lower(t, "w.tsx", src)
	root := doc.Nodes[doc.Roots[0]]

	require.NotNil(t, doc.State)
	require.Len(t, doc.State.Variables, 2)
	assert.Equal(t, "items", doc.State.Variables[0].Name)
	assert.Equal(t, "list", doc.State.Variables[0].Type.Kind)
	assert.Equal(t, "theme", doc.State.Variables[1].Name)
	assert.Equal(t, "ThemeContext", doc.State.Variables[1].ContextKey)

	require.NotNil(t, root.Meta)
	assert.Equal(t, []string{"listRef"}, root.Meta.Refs)
	assert.Contains(t, doc.Metadata.Helpers["total"], "useMemo")

	require.Len(t, root.Events, 3)
	assert.Equal(t, "unmount", root.Events[0].Phase)
	assert.Contains(t, root.Events[0].Cleanup, "unsubscribe")
	assert.Equal(t, "mount", root.Events[1].Phase)
	assert.Equal(t, "update", root.Events[2].Phase)
}

func TestLowerPlatformChain(t *testing.T) {
	src := `function Native() {
  if (Platform.OS === "ios") { setupIOS(); } else if (Platform.OS === "android") { setupAndroid(); } else { setupDefault(); }
  return <View/>;
}`
	doc := lower(t, "n.tsx", src)
	require.NotNil(t, doc.Platform)
	require.Len(t, doc.Platform.Blocks, 1)
	block := doc.Platform.Blocks[0]
	require.Len(t, block.Implementations, 2)
	assert.Equal(t, []string{"ios"}, block.Implementations[0].Platforms)
	assert.Equal(t, "setupIOS();", block.Implementations[0].Code.Source)
	assert.Equal(t, []string{"android"}, block.Implementations[1].Platforms)
	require.NotNil(t, block.Fallback)
	assert.Equal(t, "setupDefault();", block.Fallback.Source)
	assert.Empty(t, block.Warnings)
}

func TestLowerPlatformChainMissingElse(t *testing.T) {
	src := `function Native() {
  if (Platform.OS === "ios") { setupIOS(); }
  return <View/>;
}`
	doc := lower(t, "n.tsx", src)
	require.Len(t, doc.Platform.Blocks, 1)
	block := doc.Platform.Blocks[0]
	assert.Nil(t, block.Fallback)
	require.NotEmpty(t, block.Warnings)
	assert.Contains(t, block.Warnings[0], "no else")
}

func TestLowerPlatformTernary(t *testing.T) {
	src := `function Native() {
  Platform.OS === "web" ? enableMouse() : enableTouch();
  return <View/>;
}`
	doc := lower(t, "n.tsx", src)
	require.Len(t, doc.Platform.Blocks, 1)
	block := doc.Platform.Blocks[0]
	require.Len(t, block.Implementations, 1)
	assert.Equal(t, []string{"web"}, block.Implementations[0].Platforms)
	assert.Equal(t, "enableMouse();", block.Implementations[0].Code.Source)
	require.NotNil(t, block.Fallback)
	assert.Equal(t, "enableTouch();", block.Fallback.Source)
}

func TestLowerTypeDeclarations(t *testing.T) {
	src := `interface GreetingProps { name: string; }
type Mode = "light" | "dark";
function Greeting(props: GreetingProps) { return <Text text="hi"/>; }`
	doc := lower(t, "t.tsx", src)
	assert.Contains(t, doc.Metadata.TypeDefinitions["GreetingProps"], "interface GreetingProps")
	assert.Contains(t, doc.Metadata.TypeDefinitions["Mode"], "type Mode")
	root := doc.Nodes[doc.Roots[0]]
	assert.Equal(t, "props", root.Meta.PropsParam)
	assert.Equal(t, "GreetingProps", root.Meta.PropsType)
}

func TestLowerMalformedJSXRecovers(t *testing.T) {
	src := `function Broken() { return <View><<</View>; }`
	fe := NewFrontend(nil)
	doc, err := fe.Lower("b.tsx", []byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, doc.Metadata.Diagnostics)

	found := false
	doc.Walk(func(n *ir.Node) bool {
		if n.Kind == ir.KindUnknown {
			found = true
			assert.Equal(t, ir.PropString, n.Props["reason"].Kind)
		}
		return true
	})
	assert.True(t, found, "expected an Unknown placeholder node")
}

func TestLowerRejectsInvalidUTF8(t *testing.T) {
	fe := NewFrontend(nil)
	_, err := fe.Lower("bad.tsx", []byte{0xff, 0xfe, '<'})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestHandlerParams(t *testing.T) {
	assert.Nil(t, handlerParams("handleClick"))
	assert.Nil(t, handlerParams("() => done()"))
	assert.Equal(t, []string{"e"}, handlerParams("(e) => submit(e)"))
	assert.Equal(t, []string{"value", "index"}, handlerParams("(value, index) => pick(value)"))
	assert.Equal(t, []string{"x", "y"}, handlerParams("({x, y}) => move(x, y)"))
	assert.Nil(t, handlerParams("async () => { await load(); }"))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "press", eventName("onPress"))
	assert.Equal(t, "changeText", eventName("onChangeText"))
	assert.Equal(t, "submit", eventName("onSubmit"))
}

// =============================================================================
// Emission and round trip
// =============================================================================

func TestEmitCounter(t *testing.T) {
	doc := lower(t, "counter.tsx", counterSrc)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "function Counter(")
	assert.Contains(t, out, "const [c, setC] = useState(0);")
	assert.Contains(t, out, `<Button title="+" onPress={()=>setC(c+1)} />`)
	assert.Contains(t, out, "import React, { useState } from 'react';")
	assert.Contains(t, out, "import { View, Text, Button } from 'react-native';")
}

func TestEmitStripDebug(t *testing.T) {
	doc := lower(t, "d.tsx", `function D() {
  useEffect(() => { console.log("dbg");
  start(); }, []);
  return <View/>;
}`)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)
	assert.NotContains(t, out, "console.log")
	assert.Contains(t, out, "start();")

	raw, err := NewEmitter(EmitOptions{}).Emit(doc)
	require.NoError(t, err)
	assert.Contains(t, raw, "console.log")
}

func TestRoundTripCounter(t *testing.T) {
	doc := lower(t, "counter.tsx", counterSrc)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)

	relowered := lower(t, "counter.tsx", out)
	eq, err := ir.EqualModuloMeta(doc, relowered)
	require.NoError(t, err)
	if !eq {
		a, _ := doc.StripSourceMeta().Canonical()
		b, _ := relowered.StripSourceMeta().Canonical()
		t.Fatalf("round trip changed the IR:\n old: %s\n new: %s", a, b)
	}
}

func TestRoundTripNestedTree(t *testing.T) {
	src := `function Page() {
  const [query, setQuery] = useState("");
  return <View>
    <TextInput value={query} onChangeText={(text) => setQuery(text)} />
    <ScrollView>
      <Text text={query} />
    </ScrollView>
  </View>;
}`
	doc := lower(t, "page.tsx", src)
	out, err := NewEmitter(DefaultEmitOptions()).Emit(doc)
	require.NoError(t, err)
	relowered := lower(t, "page.tsx", out)
	eq, err := ir.EqualModuloMeta(doc, relowered)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestEmitWithoutOptimizationsIsStillValid(t *testing.T) {
	doc := lower(t, "counter.tsx", counterSrc)
	out, err := NewEmitter(EmitOptions{}).Emit(doc)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "function Counter("))
	// Re-lowering plain output still works.
	relowered := lower(t, "counter.tsx", out)
	assert.Len(t, relowered.Roots, 1)
}
