package scriptlet

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// systemdSearchPaths is the priority order the host searches for a unit
// file under the install root.
var systemdSearchPaths = []string{"etc/systemd/system", "usr/lib/systemd/system", "lib/systemd/system"}

// SystemdEnable enables unit. On the live root it shells out to
// `systemctl enable`. Against a target root it parses the unit's
// [Install] section itself and creates the .wants/.requires symlinks
// directly, since systemctl cannot safely operate on a non-running
// target.
func (h *Host) SystemdEnable(unit string) error {
	if h.IsLiveRoot() {
		return h.systemdEnableLive(unit)
	}
	return h.systemdEnableTarget(unit)
}

func (h *Host) systemdEnableLive(unit string) error {
	if _, err := exec.LookPath("systemctl"); err != nil {
		log.WithComponent("scriptlet").Debug().Str("unit", unit).Msg("systemctl not available, skipping enable")
		return nil
	}
	out, err := exec.Command("systemctl", "enable", unit).CombinedOutput()
	if err != nil {
		return &HookFailedError{Hook: "systemd-enable", Detail: string(out), Err: err}
	}
	log.WithComponent("scriptlet").Info().Str("unit", unit).Msg("enabled systemd unit")
	return nil
}

func (h *Host) systemdEnableTarget(unit string) error {
	var unitPath string
	for _, dir := range systemdSearchPaths {
		candidate := filepath.Join(h.Root, dir, unit)
		if _, err := os.Stat(candidate); err == nil {
			unitPath = candidate
			break
		}
	}
	if unitPath == "" {
		log.WithComponent("scriptlet").Debug().Str("unit", unit).Msg("unit file not found in target, skipping enable")
		return nil
	}

	content, err := os.ReadFile(unitPath)
	if err != nil {
		return err
	}

	wants := parseSystemdInstallSection(string(content), "WantedBy")
	requires := parseSystemdInstallSection(string(content), "RequiredBy")
	if len(wants) == 0 && len(requires) == 0 {
		log.WithComponent("scriptlet").Debug().Str("unit", unit).Msg("unit has no WantedBy/RequiredBy, nothing to enable")
		return nil
	}

	relPath := computeRelativeUnitPath(unitPath, h.Root)

	link := func(suffix string, targets []string) error {
		for _, target := range targets {
			dir := filepath.Join(h.Root, "etc/systemd/system", target+suffix)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			symlinkPath := filepath.Join(dir, unit)
			if _, err := os.Lstat(symlinkPath); err == nil {
				continue
			}
			if err := os.Symlink(relPath, symlinkPath); err != nil {
				return err
			}
		}
		return nil
	}
	if err := link(".wants", wants); err != nil {
		return err
	}
	if err := link(".requires", requires); err != nil {
		return err
	}

	log.WithComponent("scriptlet").Info().Str("unit", unit).Msg("enabled systemd unit in target root")
	return nil
}

// parseSystemdInstallSection extracts space-separated values for key
// (WantedBy or RequiredBy) from a unit file's [Install] section.
func parseSystemdInstallSection(content, key string) []string {
	var results []string
	inInstall := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inInstall = trimmed == "[Install]"
			continue
		}
		if !inInstall {
			continue
		}
		if value, ok := strings.CutPrefix(trimmed, key); ok {
			if value, ok := strings.CutPrefix(value, "="); ok {
				for _, target := range strings.Fields(value) {
					results = append(results, target)
				}
			}
		}
	}
	return results
}

// computeRelativeUnitPath computes the relative path from
// /etc/systemd/system/<target>.wants/ down to the unit file, four levels
// up from the symlink's directory to the root, then down to the unit.
func computeRelativeUnitPath(unitPath, root string) string {
	rel, err := filepath.Rel(root, unitPath)
	if err != nil {
		rel = strings.TrimPrefix(unitPath, root)
	}
	return "../../../../" + rel
}

// HookFailedError wraps a hook execution failure with enough context for
// the engine's HookFailed classification.
type HookFailedError struct {
	Hook   string
	Detail string
	Err    error
}

func (e *HookFailedError) Error() string {
	return "scriptlet: " + e.Hook + " failed: " + e.Err.Error() + ": " + e.Detail
}
func (e *HookFailedError) Unwrap() error { return e.Err }
