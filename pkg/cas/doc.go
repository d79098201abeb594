// Package cas stores and retrieves content-addressed blobs under
// <root>/objects/<hh>/<rest>, deduplicating identical content and
// enforcing a disk budget through LRU eviction. See cas.go for the
// store/retrieve/exists/evict operations and bloom.go for the
// negative-existence fast path.
package cas
