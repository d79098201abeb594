package engine

import "strings"

// NormalizeCapability canonicalizes a capability string before it is
// handed to store.FindSatisfyingProvider, so callers don't need to know
// the soname conventions different package ecosystems use to spell the
// "same" capability (e.g. a build-time "-lssl" link name versus the
// runtime "libssl.so.3" a provider actually registers).
//
// It does not attempt the prefix/case-insensitive fallbacks themselves
// (those live in store.FindSatisfyingProvider); it only removes
// decorations a caller-supplied capability name might carry that the
// stored provide entries never do.
func NormalizeCapability(capability string) string {
	c := strings.TrimSpace(capability)
	if bare := strings.TrimPrefix(c, "-l"); bare != c {
		c = bare
		if !strings.HasPrefix(c, "lib") && looksLikeLibraryName(c) {
			c = "lib" + c
		}
	}
	return c
}

// looksLikeLibraryName reports whether a bare name (as produced by a
// linker's "-lfoo" flag) should be rewritten to the "libfoo" convention
// most soname providers actually register under. A name that already
// contains a path separator or a version suffix is left untouched since
// it's clearly not a bare linker argument.
func looksLikeLibraryName(c string) bool {
	if c == "" {
		return false
	}
	return !strings.ContainsAny(c, "/.() ")
}
