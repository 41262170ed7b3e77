// Package bundle packages IRs and their referenced assets into a verifiable
// archive: collect, tree-shake, minify, compress, manifest with SHA-256
// checksums, validate.
package bundle

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/blang/semver"
	"github.com/klauspost/compress/gzip"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
)

// Logger is the structured logger the bundler binds to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BundleError is fatal: the bundle under construction is discarded.
type BundleError struct {
	Stage  string // collect, tree-shake, minify, compress, manifest, validate
	Path   string
	Reason string
}

func (e *BundleError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("bundle %s: %s: %s", e.Stage, e.Path, e.Reason)
	}
	return fmt.Sprintf("bundle %s: %s", e.Stage, e.Reason)
}

func bundleErr(stage, p, format string, args ...any) error {
	return &BundleError{Stage: stage, Path: p, Reason: fmt.Sprintf(format, args...)}
}

// Config enumerates the bundling pipeline switches.
type Config struct {
	Entry      string `json:"entry"`
	Output     string `json:"output"`
	Minify     bool   `json:"minify"`
	Compress   bool   `json:"compress"`
	TreeShake  bool   `json:"treeShake"`
	SourceMaps bool   `json:"sourceMaps"`
}

// Loader resolves and loads the documents and assets a bundle references.
type Loader interface {
	// Load produces the IR for a schema path.
	Load(path string) (*ir.IR, error)
	// ResolveComponent maps a component reference in a document to the
	// schema path defining it, if any.
	ResolveComponent(fromPath, component string) (string, bool)
	// ResolveAsset maps an asset reference to its canonical path and bytes.
	ResolveAsset(fromPath, ref string) (string, []byte, bool)
}

// SchemaRef is one schema entry in the manifest.
type SchemaRef struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Checksum string `json:"checksum"`
}

// AssetRef is one asset entry in the manifest.
type AssetRef struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Manifest is the metadata document at the root of a bundle.
type Manifest struct {
	Version          string      `json:"version"`
	Entry            string      `json:"entry"`
	Schemas          []SchemaRef `json:"schemas"`
	Assets           []AssetRef  `json:"assets"`
	Dependencies     []string    `json:"dependencies"`
	UncompressedSize int64       `json:"uncompressedSize,omitempty"`
	Checksum         string      `json:"checksum"`
}

// Bundler drives the pipeline.
type Bundler struct {
	loader Loader
	logger Logger
}

// New creates a bundler over the given loader.
func New(loader Loader, logger Logger) *Bundler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bundler{loader: loader, logger: logger}
}

type collected struct {
	path string
	doc  *ir.IR
}

// Build runs the full pipeline and writes the archive to w. The manifest is
// returned for inspection; it matches the archive's manifest.json except for
// UncompressedSize, which is set only on the returned value.
func (b *Bundler) Build(cfg Config, w io.Writer) (*Manifest, error) {
	docs, assets, err := b.collect(cfg.Entry)
	if err != nil {
		observability.RecordBundle("error", 0)
		return nil, err
	}

	if cfg.TreeShake {
		for _, c := range docs {
			c.doc = shake(c.doc)
		}
	}
	if cfg.Minify {
		for _, c := range docs {
			c.doc = minify(c.doc)
		}
	}

	manifest, body, err := b.assemble(cfg, docs, assets)
	if err != nil {
		observability.RecordBundle("error", 0)
		return nil, err
	}

	out := body
	if cfg.Compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(body); err != nil {
			observability.RecordBundle("error", 0)
			return nil, bundleErr("compress", cfg.Output, "%v", err)
		}
		if err := gz.Close(); err != nil {
			observability.RecordBundle("error", 0)
			return nil, bundleErr("compress", cfg.Output, "%v", err)
		}
		out = buf.Bytes()
	}

	if _, err := w.Write(out); err != nil {
		observability.RecordBundle("error", 0)
		return nil, bundleErr("manifest", cfg.Output, "write: %v", err)
	}

	b.logger.Info("bundle_built",
		"entry", cfg.Entry,
		"schemas", len(manifest.Schemas),
		"assets", len(manifest.Assets),
		"bytes", len(out),
		"compressed", cfg.Compress,
	)
	observability.RecordBundle("success", len(out))
	return manifest, nil
}

// =============================================================================
// Collect
// =============================================================================

// collect walks the IR dependency graph from the entry, accumulating schema
// documents and the asset set. Cycles in the component graph are fatal.
func (b *Bundler) collect(entry string) ([]*collected, map[string][]byte, error) {
	var docs []*collected
	visited := map[string]bool{}
	inProgress := map[string]bool{}
	assets := map[string][]byte{}

	var visit func(p string) error
	visit = func(p string) error {
		key := path.Clean(p)
		if visited[key] {
			return nil
		}
		if inProgress[key] {
			return bundleErr("collect", p, "component reference cycle")
		}
		inProgress[key] = true
		defer delete(inProgress, key)

		doc, err := b.loader.Load(p)
		if err != nil {
			return bundleErr("collect", p, "%v", err)
		}
		if err := doc.Validate(); err != nil {
			return bundleErr("collect", p, "%v", err)
		}

		// Follow component references and collect assets.
		defined := map[string]bool{}
		for _, rootID := range doc.Roots {
			if root := doc.Nodes[rootID]; root != nil {
				defined[root.Kind] = true
			}
		}
		var walkErr error
		doc.Walk(func(n *ir.Node) bool {
			if !ir.IsCoreKind(n.Kind) && n.Kind != ir.KindUnknown && !defined[n.Kind] {
				if dep, ok := b.loader.ResolveComponent(p, n.Kind); ok {
					if err := visit(dep); err != nil {
						walkErr = err
						return false
					}
				}
			}
			for _, key := range ir.SortedKeys(n.Props) {
				v := n.Props[key]
				if v.Kind != ir.PropString {
					continue
				}
				if !isAssetRef(v.Str) {
					continue
				}
				assetPath, data, ok := b.loader.ResolveAsset(p, v.Str)
				if !ok {
					walkErr = bundleErr("collect", v.Str, "missing asset referenced from %s", p)
					return false
				}
				assets[assetPath] = data
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}

		// Navigation targets resolve as dependencies too.
		if doc.Navigation != nil {
			for _, r := range doc.Navigation.Routes {
				if defined[r.Component] {
					continue
				}
				if dep, ok := b.loader.ResolveComponent(p, r.Component); ok {
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}

		visited[key] = true
		docs = append(docs, &collected{path: key, doc: doc})
		return nil
	}

	if err := visit(entry); err != nil {
		return nil, nil, err
	}
	return docs, assets, nil
}

var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".mp4": true, ".mp3": true, ".wav": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true,
}

func isAssetRef(value string) bool {
	if strings.ContainsAny(value, "\n{}<>") {
		return false
	}
	return assetExtensions[strings.ToLower(path.Ext(value))]
}

// =============================================================================
// Tree-shake and minify
// =============================================================================

// shake drops nodes unreachable from the roots, then side-table entries no
// retained node references. Route target components are always considered
// reachable (the safer default).
func shake(doc *ir.IR) *ir.IR {
	reachable := map[string]bool{}
	doc.Walk(func(n *ir.Node) bool {
		reachable[n.ID] = true
		return true
	})
	// A route's target component keeps that component's subtree alive.
	if doc.Navigation != nil {
		targets := map[string]bool{}
		for _, r := range doc.Navigation.Routes {
			targets[r.Component] = true
		}
		for id, n := range doc.Nodes {
			if targets[n.Kind] && !reachable[id] {
				keepSubtree(doc, id, reachable)
			}
		}
	}

	out := *doc
	out.Nodes = make(map[string]*ir.Node, len(reachable))
	referencedAnimations := map[string]bool{}
	var retainedText strings.Builder
	for id, n := range doc.Nodes {
		if !reachable[id] {
			continue
		}
		out.Nodes[id] = n
		for _, a := range n.Animations {
			referencedAnimations[a] = true
		}
		for _, ev := range n.Events {
			retainedText.WriteString(ev.Handler)
			retainedText.WriteString(ev.Cleanup)
		}
		for _, v := range n.Props {
			collectText(&retainedText, v)
		}
	}

	if len(doc.Animations) > 0 {
		var kept []*ir.AnimationSchema
		for _, a := range doc.Animations {
			if referencedAnimations[a.ID] {
				kept = append(kept, a)
			}
		}
		out.Animations = kept
	}

	// Endpoints and platform blocks survive only when a retained node's
	// handlers or props mention them.
	text := retainedText.String()
	if doc.Network != nil {
		kept := *doc.Network
		kept.Endpoints = nil
		for _, ep := range doc.Network.Endpoints {
			if strings.Contains(text, ep.ID) {
				kept.Endpoints = append(kept.Endpoints, ep)
			}
		}
		out.Network = &kept
	}
	// Platform blocks lowered from component bodies dispatch at build time;
	// they stay with their component.
	return &out
}

func keepSubtree(doc *ir.IR, id string, reachable map[string]bool) {
	if reachable[id] {
		return
	}
	reachable[id] = true
	if n := doc.Nodes[id]; n != nil {
		for _, c := range n.Children {
			keepSubtree(doc, c, reachable)
		}
	}
}

func collectText(w *strings.Builder, v ir.PropValue) {
	switch v.Kind {
	case ir.PropString, ir.PropExpr:
		w.WriteString(v.Str)
	case ir.PropStateRef, ir.PropEventRef:
		w.WriteString(v.Ref)
	case ir.PropList:
		for _, item := range v.Items {
			collectText(w, item)
		}
	case ir.PropMap:
		for _, item := range v.Entries {
			collectText(w, item)
		}
	case ir.PropPlatformMap:
		for _, item := range v.Platforms {
			collectText(w, item)
		}
		if v.Fallback != nil {
			collectText(w, *v.Fallback)
		}
	}
}

// minify strips metadata not required for rendering and rewrites node ids
// into a dense integer space. Idempotent: minify(minify(x)) == minify(x).
func minify(doc *ir.IR) *ir.IR {
	stripped := doc.StripSourceMeta()
	stripped.Metadata.Diagnostics = nil
	stripped.Metadata.Helpers = doc.Metadata.Helpers
	return stripped.Renumber()
}

// =============================================================================
// Assemble
// =============================================================================

func (b *Bundler) assemble(cfg Config, docs []*collected, assets map[string][]byte) (*Manifest, []byte, error) {
	manifest := &Manifest{
		Entry:        path.Clean(cfg.Entry),
		Dependencies: []string{},
	}

	// Schema-version monotonicity: the bundle version is the maximum any
	// contained document declares, and every document must satisfy its own
	// minimum.
	maxVersion := semver.MustParse("1.0.0")
	type schemaBody struct {
		path string
		data []byte
	}
	var schemas []schemaBody
	for _, c := range docs {
		declared, err := semver.Parse(c.doc.SchemaVersion)
		if err != nil {
			return nil, nil, bundleErr("manifest", c.path, "unparsable schema version %q", c.doc.SchemaVersion)
		}
		if declared.LT(c.doc.MinVersion()) {
			return nil, nil, bundleErr("manifest", c.path,
				"schema version %s below required %s", declared, c.doc.MinVersion())
		}
		if declared.GT(maxVersion) {
			maxVersion = declared
		}
		data, err := c.doc.Canonical()
		if err != nil {
			return nil, nil, bundleErr("manifest", c.path, "canonicalize: %v", err)
		}
		schemas = append(schemas, schemaBody{path: c.path, data: data})
		if c.path != manifest.Entry {
			manifest.Dependencies = append(manifest.Dependencies, c.path)
		}
	}
	manifest.Version = maxVersion.String()
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].path < schemas[j].path })
	sort.Strings(manifest.Dependencies)

	for _, s := range schemas {
		manifest.Schemas = append(manifest.Schemas, SchemaRef{
			Path:     s.path,
			Offset:   0,
			Length:   int64(len(s.data)),
			Checksum: checksum(s.data),
		})
	}

	assetPaths := make([]string, 0, len(assets))
	for p := range assets {
		assetPaths = append(assetPaths, p)
	}
	sort.Strings(assetPaths)
	for _, p := range assetPaths {
		manifest.Assets = append(manifest.Assets, AssetRef{
			Path:     p,
			Size:     int64(len(assets[p])),
			Checksum: checksum(assets[p]),
		})
	}

	// Overall checksum covers the manifest with the checksum field empty.
	manifestNoSum := *manifest
	manifestNoSum.Checksum = ""
	noSumBytes, err := ir.CanonicalValue(&manifestNoSum)
	if err != nil {
		return nil, nil, bundleErr("manifest", cfg.Entry, "canonicalize: %v", err)
	}
	manifest.Checksum = checksum(noSumBytes)

	manifestBytes, err := ir.CanonicalValue(manifest)
	if err != nil {
		return nil, nil, bundleErr("manifest", cfg.Entry, "canonicalize: %v", err)
	}

	// checksums.txt: line per entry, "<algorithm>:<hex>  <path>".
	var sums strings.Builder
	for _, s := range manifest.Schemas {
		fmt.Fprintf(&sums, "sha256:%s  schemas/%s.ir\n", s.Checksum, s.Path)
	}
	for _, a := range manifest.Assets {
		fmt.Fprintf(&sums, "sha256:%s  assets/%s\n", a.Checksum, a.Path)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeEntry := func(name string, data []byte) error {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
			// ModTime stays zero so identical content yields identical
			// archives byte-for-byte.
			Format: tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	if err := writeEntry("manifest.json", manifestBytes); err != nil {
		return nil, nil, bundleErr("manifest", cfg.Output, "%v", err)
	}
	for _, s := range schemas {
		if err := writeEntry("schemas/"+s.path+".ir", s.data); err != nil {
			return nil, nil, bundleErr("manifest", s.path, "%v", err)
		}
	}
	for _, p := range assetPaths {
		if err := writeEntry("assets/"+p, assets[p]); err != nil {
			return nil, nil, bundleErr("manifest", p, "%v", err)
		}
	}
	if err := writeEntry("checksums.txt", []byte(sums.String())); err != nil {
		return nil, nil, bundleErr("manifest", cfg.Output, "%v", err)
	}
	if err := tw.Close(); err != nil {
		return nil, nil, bundleErr("manifest", cfg.Output, "%v", err)
	}

	manifest.UncompressedSize = int64(buf.Len())
	return manifest, buf.Bytes(), nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
