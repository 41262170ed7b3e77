package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

func docFor(path string) *ir.IR {
	return &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Metadata:      ir.Metadata{SourcePath: path},
		Roots:         []string{"n0"},
		Nodes:         map[string]*ir.Node{"n0": {ID: "n0", Kind: ir.KindView}},
	}
}

func TestKeyForIsContentHash(t *testing.T) {
	a := KeyFor([]byte("const x = 1;"))
	b := KeyFor([]byte("const x = 1;"))
	c := KeyFor([]byte("const x = 2;"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
}

func TestASTCacheHitOnlyForIdenticalContent(t *testing.T) {
	c := NewASTCache(ir.DialectJSX, 10, time.Minute)
	key := KeyFor([]byte("source"))
	_, ok := c.Get(key)
	assert.False(t, ok)

	doc := docFor("a.tsx")
	c.Put(key, doc)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, doc, got)

	_, ok = c.Get(KeyFor([]byte("other source")))
	assert.False(t, ok)
}

func TestASTCacheBound(t *testing.T) {
	c := NewASTCache(ir.DialectJSX, 3, time.Minute)
	for i := 0; i < 5; i++ {
		c.Put(KeyFor([]byte(fmt.Sprintf("src-%d", i))), docFor("x.tsx"))
	}
	assert.LessOrEqual(t, c.Len(), 3)

	// Least-recently-used entries were the ones evicted.
	_, ok := c.Get(KeyFor([]byte("src-4")))
	assert.True(t, ok)
	_, ok = c.Get(KeyFor([]byte("src-0")))
	assert.False(t, ok)
}

func TestASTCacheTTL(t *testing.T) {
	c := NewASTCache(ir.DialectDart, 10, 20*time.Millisecond)
	key := KeyFor([]byte("short lived"))
	c.Put(key, docFor("w.dart"))
	_, ok := c.Get(key)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestASTCacheDisable(t *testing.T) {
	c := NewASTCache(ir.DialectJSX, 10, time.Minute)
	key := KeyFor([]byte("source"))
	c.Put(key, docFor("a.tsx"))
	c.Disable()
	_, ok := c.Get(key)
	assert.False(t, ok)
	c.Put(key, docFor("a.tsx"))
	assert.Equal(t, 0, c.Len())
}

func TestSubtreeCache(t *testing.T) {
	c := NewSubtreeCache(2)
	n1 := []*ir.Node{{ID: "1", Kind: ir.KindText}}
	n2 := []*ir.Node{{ID: "2", Kind: ir.KindView}}
	n3 := []*ir.Node{{ID: "3", Kind: ir.KindButton}}

	c.Put(KeyFor([]byte("one")), n1)
	c.Put(KeyFor([]byte("two")), n2)
	c.Put(KeyFor([]byte("three")), n3) // evicts "one"

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(KeyFor([]byte("one")))
	assert.False(t, ok)
	got, ok := c.Get(KeyFor([]byte("three")))
	require.True(t, ok)
	assert.Equal(t, n3, got)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
