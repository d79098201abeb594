// Package pkgfmt defines the abstract Package representation the
// transaction engine consumes (§6). Format handlers for RPM, DEB, Arch,
// and the native manifest format all produce this representation; the
// engine never inspects archive byte layout directly.
package pkgfmt
