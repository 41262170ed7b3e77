package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func fixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "App.tsx", `function App(){
  return <View><Logo/><Banner/><Text>Hello</Text></View>; }`)
	writeFile(t, root, "Logo.tsx", `function Logo(){
  return <Image source="logo.png"/>; }`)
	writeFile(t, root, "Banner.tsx", `function Banner(){
  return <View><Image source="logo.png"/></View>; }`)
	writeFile(t, root, "logo.png", "\x89PNG fake image bytes")
	return root
}

func build(t *testing.T, root string, cfg Config) (*Manifest, []byte) {
	t.Helper()
	var buf bytes.Buffer
	manifest, err := New(NewFSLoader(root), nil).Build(cfg, &buf)
	require.NoError(t, err)
	return manifest, buf.Bytes()
}

func TestBuildCollectsDependenciesAndAssets(t *testing.T) {
	root := fixtureProject(t)
	manifest, raw := build(t, root, Config{Entry: "App.tsx"})

	assert.Equal(t, "App.tsx", manifest.Entry)
	require.Len(t, manifest.Schemas, 3)
	assert.ElementsMatch(t, []string{"Logo.tsx", "Banner.tsx"}, manifest.Dependencies)

	// Two documents reference the same asset: exactly one entry.
	require.Len(t, manifest.Assets, 1)
	assert.Equal(t, "logo.png", manifest.Assets[0].Path)
	assert.Len(t, manifest.Assets[0].Checksum, 64)

	opened, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, opened.Validate())
	assert.Len(t, opened.Schemas, 3)
	assert.Contains(t, opened.Checksums, "sha256:")
	assert.Contains(t, opened.Checksums, "assets/logo.png")
}

func TestBuildDeterministic(t *testing.T) {
	root := fixtureProject(t)
	_, a := build(t, root, Config{Entry: "App.tsx", Minify: true, TreeShake: true})
	_, b := build(t, root, Config{Entry: "App.tsx", Minify: true, TreeShake: true})
	assert.Equal(t, a, b, "bundling must be byte-for-byte reproducible")
}

func TestBundleChecksumDetectsTampering(t *testing.T) {
	root := fixtureProject(t)
	manifest, raw := build(t, root, Config{Entry: "App.tsx"})

	opened, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, opened.Validate())

	// Altering one byte of the asset changes its checksum and fails
	// validation against the old manifest.
	tampered := append([]byte{}, opened.Assets["logo.png"]...)
	tampered[len(tampered)-1] ^= 0xff
	opened.Assets["logo.png"] = tampered
	err = opened.Validate()
	require.Error(t, err)
	var bundleError *BundleError
	require.ErrorAs(t, err, &bundleError)
	assert.Equal(t, "validate", bundleError.Stage)
	assert.Contains(t, err.Error(), "checksum mismatch")

	// Rebuilding after changing the asset on disk changes the overall
	// bundle checksum.
	writeFile(t, root, "logo.png", "\x89PNG different bytes")
	manifest2, _ := build(t, root, Config{Entry: "App.tsx"})
	assert.NotEqual(t, manifest.Checksum, manifest2.Checksum)
}

func TestMissingAssetIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App.tsx", `function App(){
  return <Image source="missing.png"/>; }`)
	var buf bytes.Buffer
	_, err := New(NewFSLoader(root), nil).Build(Config{Entry: "App.tsx"}, &buf)
	require.Error(t, err)
	var bundleError *BundleError
	require.ErrorAs(t, err, &bundleError)
	assert.Equal(t, "collect", bundleError.Stage)
	assert.Contains(t, err.Error(), "missing.png")
}

func TestComponentCycleIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.tsx", `function A(){ return <View><B/></View>; }`)
	writeFile(t, root, "B.tsx", `function B(){ return <View><A/></View>; }`)
	var buf bytes.Buffer
	_, err := New(NewFSLoader(root), nil).Build(Config{Entry: "A.tsx"}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCompressedBundleRoundTrips(t *testing.T) {
	root := fixtureProject(t)
	manifest, raw := build(t, root, Config{Entry: "App.tsx", Compress: true})
	assert.Greater(t, manifest.UncompressedSize, int64(len(raw)))

	opened, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, opened.Validate())
	assert.Equal(t, manifest.Entry, opened.Manifest.Entry)
}

func TestTreeShakeDropsDetachedNodes(t *testing.T) {
	doc := &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Roots:         []string{"root"},
		Nodes: map[string]*ir.Node{
			"root":     {ID: "root", Kind: "App", Children: []string{"kept"}},
			"kept":     {ID: "kept", Kind: ir.KindText, Props: map[string]ir.PropValue{"text": ir.Str("hi")}},
			"detached": {ID: "detached", Kind: ir.KindView},
		},
		Animations: []*ir.AnimationSchema{
			{ID: "used", Kind: ir.AnimationTiming, Duration: 100, Easing: ir.Easing{Tag: ir.EaseLinear}},
			{ID: "unused", Kind: ir.AnimationTiming, Duration: 100, Easing: ir.Easing{Tag: ir.EaseLinear}},
		},
	}
	doc.Nodes["kept"].Animations = []string{"used"}

	shaken := shake(doc)
	assert.Nil(t, shaken.Nodes["detached"])
	assert.NotNil(t, shaken.Nodes["kept"])
	require.Len(t, shaken.Animations, 1)
	assert.Equal(t, "used", shaken.Animations[0].ID)
}

func TestTreeShakeKeepsRouteTargets(t *testing.T) {
	doc := &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Roots:         []string{"root"},
		Nodes: map[string]*ir.Node{
			"root":   {ID: "root", Kind: "App"},
			"screen": {ID: "screen", Kind: "Settings", Children: []string{"label"}},
			"label":  {ID: "label", Kind: ir.KindText, Props: map[string]ir.PropValue{"text": ir.Str("settings")}},
		},
		Navigation: &ir.NavigationSchema{
			Routes: []ir.Route{{Name: "settings", Path: "/settings", Component: "Settings"}},
		},
	}
	shaken := shake(doc)
	assert.NotNil(t, shaken.Nodes["screen"], "route targets stay reachable")
	assert.NotNil(t, shaken.Nodes["label"])
}

func TestMinifyIdempotent(t *testing.T) {
	root := fixtureProject(t)
	loader := NewFSLoader(root)
	doc, err := loader.Load("App.tsx")
	require.NoError(t, err)

	once := minify(doc)
	twice := minify(once)
	a, err := once.Canonical()
	require.NoError(t, err)
	b, err := twice.Canonical()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVersionViolationIsFatal(t *testing.T) {
	root := t.TempDir()
	doc := &ir.IR{
		SchemaVersion: "0.9.0",
		Roots:         []string{"n"},
		Nodes:         map[string]*ir.Node{"n": {ID: "n", Kind: ir.KindView}},
	}
	data, err := doc.Canonical()
	require.NoError(t, err)
	writeFile(t, root, "old.ir", string(data))

	var buf bytes.Buffer
	_, err = New(NewFSLoader(root), nil).Build(Config{Entry: "old.ir"}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema-version")
}
