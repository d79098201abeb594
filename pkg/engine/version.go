package engine

import (
	"strconv"
	"strings"
)

// versionLess reports whether a is an older version than b. Trove
// versions aren't guaranteed to be valid semver (legacy RPM/DEB versions
// carry epoch and release suffixes semver can't parse), so comparison
// walks dot-separated numeric components left to right and falls back to
// a lexicographic comparison of the first component that isn't purely
// numeric on both sides.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an != bn {
				return an < bn
			}
			continue
		}
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
