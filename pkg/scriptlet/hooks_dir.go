package scriptlet

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/pathutil"
)

// CreateDir creates path (sanitized and joined under the install root)
// with the given mode, optionally chowning it to owner:group. owner and
// group may be empty to leave ownership at the creating process's
// default.
func (h *Host) CreateDir(path, owner, group, mode string) error {
	if _, err := pathutil.Sanitize(path); err != nil {
		return err
	}
	full, err := pathutil.SafeJoin(h.Root, path)
	if err != nil {
		return err
	}

	perm := os.FileMode(0755)
	if mode != "" {
		parsed, err := strconv.ParseUint(mode, 8, 32)
		if err != nil {
			return fmt.Errorf("scriptlet: invalid dir mode %q: %w", mode, err)
		}
		perm = os.FileMode(parsed)
	}

	if err := os.MkdirAll(full, perm); err != nil {
		return err
	}
	if err := os.Chmod(full, perm); err != nil {
		return err
	}

	if owner != "" || group != "" {
		uid, gid := -1, -1
		if owner != "" {
			if u, err := user.Lookup(owner); err == nil {
				uid, _ = strconv.Atoi(u.Uid)
			}
		}
		if group != "" {
			if g, err := user.LookupGroup(group); err == nil {
				gid, _ = strconv.Atoi(g.Gid)
			}
		}
		if uid >= 0 || gid >= 0 {
			if err := os.Chown(full, uid, gid); err != nil {
				log.WithComponent("scriptlet").Warn().Err(err).Str("path", full).Msg("chown failed")
			}
		}
	}

	log.WithComponent("scriptlet").Debug().Str("path", full).Msg("created directory")
	return nil
}
