package pkgfmt

import (
	"errors"
	"testing"
)

const sampleManifest = `
[package]
name = nginx
version = 1.24.0
architecture = x86_64

[[provides]]
capability = webserver

[[file]]
path = usr/sbin/nginx
mode = 0755
type = regular
content = "BINARY"
`

func TestParseManifest(t *testing.T) {
	pkg, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.Name != "nginx" || pkg.Version != "1.24.0" || pkg.Architecture != "x86_64" {
		t.Fatalf("unexpected package fields: %+v", pkg)
	}
	if len(pkg.Files) != 1 || pkg.Files[0].Path != "usr/sbin/nginx" || pkg.Files[0].Mode != 0755 {
		t.Fatalf("unexpected files: %+v", pkg.Files)
	}
	if len(pkg.Provides) != 1 || pkg.Provides[0].Capability != "webserver" {
		t.Fatalf("unexpected provides: %+v", pkg.Provides)
	}
}

func TestParseManifestRequiresName(t *testing.T) {
	_, err := ParseManifest([]byte("[package]\nversion = 1.0\n"))
	if err == nil {
		t.Fatal("expected error for manifest missing a name")
	}
}

func TestDetectFormat(t *testing.T) {
	if f, err := DetectFormat("nginx.manifest", nil); err != nil || f != FormatNative {
		t.Fatalf("expected native format, got %v, %v", f, err)
	}
	if f, err := DetectFormat("nginx.rpm", nil); err != nil || f != FormatRPM {
		t.Fatalf("expected rpm format, got %v, %v", f, err)
	}
	rpmMagic := []byte{0xed, 0xab, 0xee, 0xdb}
	if f, err := DetectFormat("unknown", rpmMagic); err != nil || f != FormatRPM {
		t.Fatalf("expected rpm format from magic, got %v, %v", f, err)
	}
	if _, err := DetectFormat("unknown", []byte{0, 0, 0, 0}); !errors.Is(err, ErrFormatUnsupported) {
		t.Fatalf("expected ErrFormatUnsupported, got %v", err)
	}
}
