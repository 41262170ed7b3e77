package bundle

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lumora-labs/lumora-core/coreengine/dart"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/jsx"
)

// FSLoader loads schema documents from the filesystem, lowering source
// units through the dialect front-ends selected by file extension.
type FSLoader struct {
	Root string
	jsx  *jsx.Frontend
	dart *dart.Frontend
}

// NewFSLoader creates a loader rooted at dir.
func NewFSLoader(dir string) *FSLoader {
	return &FSLoader{
		Root: dir,
		jsx:  jsx.NewFrontend(nil),
		dart: dart.NewFrontend(nil),
	}
}

// Load reads and lowers one schema path (relative to the root). Dialect
// selection is extension-based; ".ir" files hold canonical serializations.
func (l *FSLoader) Load(p string) (*ir.IR, error) {
	full := filepath.Join(l.Root, filepath.FromSlash(p))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".tsx", ".jsx", ".ts":
		return l.jsx.Lower(p, data)
	case ".dart":
		return l.dart.Lower(p, data)
	case ".ir", ".json":
		return ir.Decode(data)
	}
	return nil, fmt.Errorf("unsupported schema extension: %s", p)
}

// ResolveComponent looks for a source unit named after the component next to
// the referencing document.
func (l *FSLoader) ResolveComponent(fromPath, component string) (string, bool) {
	dir := path.Dir(fromPath)
	for _, name := range []string{component, strings.ToLower(component)} {
		for _, ext := range []string{".tsx", ".jsx", ".ts", ".dart", ".ir", ".json"} {
			candidate := path.Join(dir, name+ext)
			if _, err := os.Stat(filepath.Join(l.Root, filepath.FromSlash(candidate))); err == nil {
				return candidate, true
			}
		}
	}
	return "", false
}

// ResolveAsset reads an asset relative to the referencing document.
func (l *FSLoader) ResolveAsset(fromPath, ref string) (string, []byte, bool) {
	candidate := ref
	if !strings.HasPrefix(ref, "/") {
		candidate = path.Join(path.Dir(fromPath), ref)
	}
	candidate = path.Clean(strings.TrimPrefix(candidate, "/"))
	data, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(candidate)))
	if err != nil {
		return "", nil, false
	}
	return candidate, data, true
}
