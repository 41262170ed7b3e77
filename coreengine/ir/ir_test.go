package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIR() *IR {
	root := &Node{
		ID:       "n0-aabbccdd",
		Kind:     "Counter",
		Children: []string{"n1-aabbccdd"},
	}
	view := &Node{
		ID:       "n1-aabbccdd",
		Kind:     KindView,
		Children: []string{"n2-aabbccdd", "n3-aabbccdd"},
	}
	text := &Node{
		ID:    "n2-aabbccdd",
		Kind:  KindText,
		Props: map[string]PropValue{"text": StateRef("c")},
	}
	button := &Node{
		ID:    "n3-aabbccdd",
		Kind:  KindButton,
		Props: map[string]PropValue{"title": Str("+")},
		Events: []EventBinding{
			{Event: "press", Handler: "() => setC(c + 1)"},
		},
	}
	return &IR{
		SchemaVersion: SchemaVersion,
		Metadata:      Metadata{SourceDialect: DialectJSX, SourcePath: "counter.tsx"},
		Roots:         []string{root.ID},
		Nodes: map[string]*Node{
			root.ID: root, view.ID: view, text.ID: text, button.ID: button,
		},
		State: &StateDefinition{
			Scope: ScopeLocal,
			Variables: []StateVariable{
				{Name: "c", Type: TypeInteger, Initial: Int(0), Mutable: true, Setter: "setC"},
			},
		},
	}
}

func TestPlatformValueRecognition(t *testing.T) {
	t.Run("platform tags recognized structurally", func(t *testing.T) {
		v := PlatformValue(map[string]PropValue{
			"ios":      Str("SF Pro"),
			"android":  Str("Roboto"),
			"fallback": Str("sans-serif"),
		})
		require.Equal(t, PropPlatformMap, v.Kind)
		assert.Len(t, v.Platforms, 2)
		require.NotNil(t, v.Fallback)
		assert.Equal(t, "sans-serif", v.Fallback.Str)
	})

	t.Run("non-platform key demotes to plain mapping", func(t *testing.T) {
		v := PlatformValue(map[string]PropValue{
			"ios":   Str("SF Pro"),
			"color": Str("red"),
		})
		assert.Equal(t, PropMap, v.Kind)
	})

	t.Run("fallback-only is a plain mapping", func(t *testing.T) {
		v := PlatformValue(map[string]PropValue{
			"fallback": Str("sans-serif"),
		})
		assert.Equal(t, PropMap, v.Kind)
	})
}

func TestPropValueEqualAndJSON(t *testing.T) {
	values := []PropValue{
		Str("hello"),
		Int(42),
		Dec(1.5),
		Bool(true),
		Null(),
		List(Int(1), Str("two")),
		Map(map[string]PropValue{"a": Int(1)}),
		StateRef("count"),
		EventRef("onPress"),
		PlatformValue(map[string]PropValue{"ios": Str("x"), "fallback": Str("y")}),
		Expr("a + b"),
	}
	for _, v := range values {
		data, err := jsonit.Marshal(v)
		require.NoError(t, err)
		var back PropValue
		require.NoError(t, jsonit.Unmarshal(data, &back))
		assert.True(t, v.Equal(back), "round trip changed %s value", v.Kind)
	}

	assert.False(t, Int(1).Equal(Dec(1)))
	assert.False(t, Str("a").Equal(Str("b")))
}

func TestCanonicalDeterminism(t *testing.T) {
	doc := testIR()
	a, err := doc.Canonical()
	require.NoError(t, err)
	b, err := doc.Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Event ordering is canonical regardless of declaration order.
	doc2 := testIR()
	doc2.Nodes["n3-aabbccdd"].Events = []EventBinding{
		{Event: "press", Handler: "() => setC(c + 1)"},
		{Event: "longPress", Handler: "() => setC(0)"},
	}
	doc3 := testIR()
	doc3.Nodes["n3-aabbccdd"].Events = []EventBinding{
		{Event: "longPress", Handler: "() => setC(0)"},
		{Event: "press", Handler: "() => setC(c + 1)"},
	}
	c, err := doc2.Canonical()
	require.NoError(t, err)
	c3, err := doc3.Canonical()
	require.NoError(t, err)
	assert.Equal(t, c3, c)

	h1, err := doc.Hash()
	require.NoError(t, err)
	assert.Len(t, h1, 64)
}

func TestCanonicalRoundTrip(t *testing.T) {
	doc := testIR()
	data, err := doc.Canonical()
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	eq, err := Equal(doc, back)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestValidate(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		require.NoError(t, testIR().Validate())
	})

	t.Run("dangling state ref", func(t *testing.T) {
		doc := testIR()
		doc.State = nil
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "state-ref")
	})

	t.Run("cycle is fatal", func(t *testing.T) {
		doc := testIR()
		doc.Nodes["n2-aabbccdd"].Children = []string{"n1-aabbccdd"}
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "acyclic")
	})

	t.Run("duplicate event binding", func(t *testing.T) {
		doc := testIR()
		n := doc.Nodes["n3-aabbccdd"]
		n.Events = append(n.Events, EventBinding{Event: "press", Handler: "noop"})
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event-unique")
	})

	t.Run("missing animation", func(t *testing.T) {
		doc := testIR()
		doc.Nodes["n2-aabbccdd"].Animations = []string{"fade-in"}
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "animation-ref")
	})

	t.Run("duplicate route name", func(t *testing.T) {
		doc := testIR()
		doc.Navigation = &NavigationSchema{Routes: []Route{
			{Name: "home", Path: "/", Component: "Home"},
			{Name: "home", Path: "/home", Component: "Home"},
		}}
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "route-unique")
	})

	t.Run("bad schema version", func(t *testing.T) {
		doc := testIR()
		doc.SchemaVersion = "not-a-version"
		err := doc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema-version")
	})
}

func TestIDMinterDeterminism(t *testing.T) {
	a := NewIDMinter("src/app.tsx")
	b := NewIDMinter("src/app.tsx")
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Mint(), b.Mint())
	}
	other := NewIDMinter("src/other.tsx")
	assert.NotEqual(t, NewIDMinter("src/app.tsx").Mint(), other.Mint())
}

func TestCloneRemintsIDs(t *testing.T) {
	doc := testIR()
	clone := doc.Clone(NewIDMinter("clone.tsx"))
	require.NoError(t, clone.Validate())
	assert.Len(t, clone.Nodes, len(doc.Nodes))
	for id := range clone.Nodes {
		_, collision := doc.Nodes[id]
		assert.False(t, collision, "clone reused id %q", id)
	}
	// Structure preserved under re-minted ids.
	root := clone.Nodes[clone.Roots[0]]
	require.NotNil(t, root)
	assert.Equal(t, "Counter", root.Kind)
	assert.Len(t, root.Children, 1)
}

func TestRenumberDense(t *testing.T) {
	doc := testIR()
	dense := doc.Renumber()
	require.NoError(t, dense.Validate())
	assert.ElementsMatch(t, []string{"0", "1", "2", "3"}, SortedKeys(dense.Nodes))
	assert.Equal(t, "0", dense.Roots[0])
}

func TestWalkOrder(t *testing.T) {
	doc := testIR()
	var kinds []string
	doc.Walk(func(n *Node) bool {
		kinds = append(kinds, n.Kind)
		return true
	})
	assert.Equal(t, []string{"Counter", KindView, KindText, KindButton}, kinds)
}

func TestInferType(t *testing.T) {
	assert.Equal(t, "integer", InferType(Int(3)).Kind)
	assert.Equal(t, "decimal", InferType(Dec(0.5)).Kind)
	assert.Equal(t, "boolean", InferType(Bool(true)).Kind)
	assert.Equal(t, "string", InferType(Str("x")).Kind)
	assert.Equal(t, "unknown", InferType(Expr("f()")).Kind)
	lst := InferType(List(Int(1)))
	assert.Equal(t, "list", lst.Kind)
	require.NotNil(t, lst.Elem)
	assert.Equal(t, "integer", lst.Elem.Kind)
}
