package engine

import (
	"context"

	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
)

// Upgrade installs pkg over whatever version of pkg.Name is currently
// installed. It is Install with the intent made explicit; the actual
// upgrade-vs-fresh-install decision and the old trove's removal both
// happen inside Install's single database transaction (§4.3.5), so
// nothing here needs its own transaction boundary.
func (e *Engine) Upgrade(ctx context.Context, pkg *pkgfmt.Package, flags Flags) (*Result, error) {
	return e.Install(ctx, pkg, flags)
}

// Downgrade installs pkg over a newer installed version. Identical to
// Upgrade except that it sets flags.AllowDowngrade itself, so Install's
// DowngradeRefusedError gate does not apply.
func (e *Engine) Downgrade(ctx context.Context, pkg *pkgfmt.Package, flags Flags) (*Result, error) {
	flags.AllowDowngrade = true
	return e.Install(ctx, pkg, flags)
}
