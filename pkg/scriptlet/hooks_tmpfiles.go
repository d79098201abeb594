package scriptlet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/pathutil"
)

// WriteTmpfilesEntry writes a tmpfiles.d config fragment under the
// install root. Against any root this only writes the file; applying it
// (systemd-tmpfiles --create) is explicitly skipped for a target root
// and left to the host's own boot sequence for the live root, per §4.5
// ("write config files under the target root but do not apply them").
func (h *Host) WriteTmpfilesEntry(name, content string) error {
	return h.writeConfigFragment("usr/lib/tmpfiles.d", name, content)
}

// WriteSysctlEntry writes a sysctl.d config fragment under the install
// root, with the same apply-later semantics as WriteTmpfilesEntry.
func (h *Host) WriteSysctlEntry(name, content string) error {
	return h.writeConfigFragment("usr/lib/sysctl.d", name, content)
}

func (h *Host) writeConfigFragment(dir, name, content string) error {
	clean, err := pathutil.SanitizeFilename(name)
	if err != nil {
		return err
	}
	full, err := pathutil.SafeJoin(h.Root, filepath.Join(dir, clean))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("scriptlet: write %s: %w", full, err)
	}
	log.WithComponent("scriptlet").Debug().Str("path", full).Msg("wrote config fragment")
	return nil
}
