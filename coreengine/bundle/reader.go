package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/blang/semver"
	"github.com/klauspost/compress/gzip"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// Bundle is an opened archive.
type Bundle struct {
	Manifest  *Manifest
	Schemas   map[string][]byte // schema path -> canonical IR bytes
	Assets    map[string][]byte // asset path -> raw bytes
	Checksums string            // checksums.txt content
}

// Read opens a bundle archive. Compressed archives are detected by the gzip
// magic bytes.
func Read(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, bundleErr("validate", "", "read: %v", err)
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, bundleErr("validate", "", "decompress: %v", err)
		}
		data, err = io.ReadAll(gz)
		if err != nil {
			return nil, bundleErr("validate", "", "decompress: %v", err)
		}
	}

	out := &Bundle{
		Schemas: map[string][]byte{},
		Assets:  map[string][]byte{},
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bundleErr("validate", "", "archive: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, bundleErr("validate", hdr.Name, "archive: %v", err)
		}
		switch {
		case hdr.Name == "manifest.json":
			var m Manifest
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, bundleErr("validate", hdr.Name, "%v", err)
			}
			out.Manifest = &m
		case strings.HasPrefix(hdr.Name, "schemas/"):
			p := strings.TrimSuffix(strings.TrimPrefix(hdr.Name, "schemas/"), ".ir")
			out.Schemas[p] = body
		case strings.HasPrefix(hdr.Name, "assets/"):
			out.Assets[strings.TrimPrefix(hdr.Name, "assets/")] = body
		case hdr.Name == "checksums.txt":
			out.Checksums = string(body)
		}
	}
	if out.Manifest == nil {
		return nil, bundleErr("validate", "manifest.json", "missing manifest")
	}
	return out, nil
}

// Validate recomputes every checksum against the archive content and checks
// the schema-version constraints. Any mismatch is fatal.
func (b *Bundle) Validate() error {
	for _, s := range b.Manifest.Schemas {
		body, ok := b.Schemas[s.Path]
		if !ok {
			return bundleErr("validate", s.Path, "schema missing from archive")
		}
		if got := checksum(body); got != s.Checksum {
			return bundleErr("validate", s.Path, "schema checksum mismatch: %s != %s", got, s.Checksum)
		}
		doc, err := ir.Decode(body)
		if err != nil {
			return bundleErr("validate", s.Path, "%v", err)
		}
		declared, err := semver.Parse(doc.SchemaVersion)
		if err != nil {
			return bundleErr("validate", s.Path, "unparsable schema version %q", doc.SchemaVersion)
		}
		bundleVersion, err := semver.Parse(b.Manifest.Version)
		if err != nil {
			return bundleErr("validate", s.Path, "unparsable bundle version %q", b.Manifest.Version)
		}
		if bundleVersion.LT(declared) {
			return bundleErr("validate", s.Path,
				"bundle version %s below schema requirement %s", b.Manifest.Version, doc.SchemaVersion)
		}
	}
	for _, a := range b.Manifest.Assets {
		body, ok := b.Assets[a.Path]
		if !ok {
			return bundleErr("validate", a.Path, "asset missing from archive")
		}
		if got := checksum(body); got != a.Checksum {
			return bundleErr("validate", a.Path, "asset checksum mismatch: %s != %s", got, a.Checksum)
		}
	}

	// The overall checksum covers the manifest with the volatile fields
	// cleared.
	noSum := *b.Manifest
	noSum.Checksum = ""
	noSum.UncompressedSize = 0
	noSumBytes, err := ir.CanonicalValue(&noSum)
	if err != nil {
		return bundleErr("validate", "manifest.json", "canonicalize: %v", err)
	}
	if got := checksum(noSumBytes); got != b.Manifest.Checksum {
		return bundleErr("validate", "manifest.json", "bundle checksum mismatch: %s != %s", got, b.Manifest.Checksum)
	}
	return nil
}
