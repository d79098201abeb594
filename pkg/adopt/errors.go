package adopt

import "errors"

// ErrNotCached is returned when a legacy record has not been queried yet.
var ErrNotCached = errors.New("adopt: no cached legacy record")

// ErrAlreadyTracked is returned when adopting a package conary already tracks.
var ErrAlreadyTracked = errors.New("adopt: package already tracked")

// ErrNoPackageManager is returned when no supported legacy package manager
// is available on the host to query.
var ErrNoPackageManager = errors.New("adopt: no supported legacy package manager found")
