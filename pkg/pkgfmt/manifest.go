package pkgfmt

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormatUnsupported is returned by format detection when neither the
// filename nor the magic bytes identify a known format; RPM/DEB/Arch
// byte-level parsing is delegated to an external handler per §6.
var errFormatUnsupported = fmt.Errorf("pkgfmt: unsupported archive format")

// ErrFormatUnsupported exposes errFormatUnsupported for callers that need
// to detect it with errors.Is.
var ErrFormatUnsupported = errFormatUnsupported

// ParseManifest parses the native manifest format: an INI-like, line
// oriented text format with a [package] section, repeatable [[file]],
// [[depends]], [[provides]], and [[scriptlet]] sections. This is the
// "native manifest-based format" spec.md's scope section names without
// detailing; it exists so deduplication, scriptlet sandboxing, and
// declarative hooks apply uniformly to natively-authored packages, not
// just archives converted on the fly.
//
// Example:
//
//	[package]
//	name = nginx
//	version = 1.24.0
//	architecture = x86_64
//
//	[[provides]]
//	capability = webserver
//
//	[[file]]
//	path = usr/sbin/nginx
//	mode = 0755
//	type = regular
func ParseManifest(data []byte) (*Package, error) {
	pkg := &Package{SourceFormat: FormatNative}

	var section string
	var cur map[string]string
	flush := func() error {
		if cur == nil {
			return nil
		}
		switch section {
		case "package":
			pkg.Name = cur["name"]
			pkg.Version = cur["version"]
			pkg.Architecture = cur["architecture"]
			pkg.Description = cur["description"]
		case "file":
			f := File{
				Path: cur["path"],
				Type: FileRegular,
			}
			if t, ok := cur["type"]; ok {
				f.Type = FileType(t)
			}
			if m, ok := cur["mode"]; ok {
				mode, err := strconv.ParseUint(m, 8, 32)
				if err != nil {
					return fmt.Errorf("pkgfmt: invalid mode %q: %w", m, err)
				}
				f.Mode = uint32(mode)
			}
			if t, ok := cur["target"]; ok {
				f.Target = t
			}
			if c, ok := cur["content"]; ok {
				f.Content = []byte(c)
				f.Size = int64(len(f.Content))
			}
			pkg.Files = append(pkg.Files, f)
		case "depends":
			d := Dependency{
				Name:              cur["name"],
				VersionConstraint: cur["version"],
				Kind:              DepRuntime,
			}
			if k, ok := cur["kind"]; ok {
				d.Kind = DependencyKind(k)
			}
			pkg.Dependencies = append(pkg.Dependencies, d)
		case "provides":
			pkg.Provides = append(pkg.Provides, Provide{
				Capability: cur["capability"],
				Version:    cur["version"],
			})
		case "scriptlet":
			pkg.Scriptlets = append(pkg.Scriptlets, Scriptlet{
				Phase:       ScriptletPhase(cur["phase"]),
				Interpreter: cur["interpreter"],
				Body:        cur["body"],
			})
		}
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[[") && strings.HasSuffix(line, "]]") {
			if err := flush(); err != nil {
				return nil, err
			}
			section = strings.TrimSuffix(strings.TrimPrefix(line, "[["), "]]")
			cur = map[string]string{}
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := flush(); err != nil {
				return nil, err
			}
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			cur = map[string]string{}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("pkgfmt: malformed manifest line: %q", line)
		}
		if cur == nil {
			return nil, fmt.Errorf("pkgfmt: key/value outside any section: %q", line)
		}
		cur[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if pkg.Name == "" {
		return nil, fmt.Errorf("pkgfmt: manifest missing [package] name")
	}
	return pkg, nil
}

// DetectFormat inspects a filename and, failing that, magic bytes, to
// decide which format handler should parse an archive. The engine itself
// never inspects RPM/DEB/Arch byte layout (§6); this only names the
// format (native by extension, RPM/DEB/Arch by extension or lead magic)
// so the matching handler can take over, per §4.3.2 step 1, and reports
// ErrFormatUnsupported for anything else.
func DetectFormat(filename string, magic []byte) (SourceFormat, error) {
	switch {
	case strings.HasSuffix(filename, ".ccs"), strings.HasSuffix(filename, ".manifest"):
		return FormatNative, nil
	case strings.HasSuffix(filename, ".rpm"):
		return FormatRPM, nil
	case strings.HasSuffix(filename, ".deb"):
		return FormatDEB, nil
	case strings.HasSuffix(filename, ".pkg.tar.zst"), strings.HasSuffix(filename, ".pkg.tar.xz"):
		return FormatArch, nil
	}

	if len(magic) >= 4 {
		switch {
		case magic[0] == 0xed && magic[1] == 0xab && magic[2] == 0xee && magic[3] == 0xdb:
			return FormatRPM, nil // RPM lead magic
		case magic[0] == '!' && magic[1] == '<' && magic[2] == 'a' && magic[3] == 'r':
			return FormatDEB, nil // ar archive magic used by .deb
		}
	}

	return "", ErrFormatUnsupported
}
