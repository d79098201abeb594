package scriptlet

import (
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
)

// SandboxMode controls how legacy shell scriptlets are executed.
type SandboxMode string

const (
	SandboxNever  SandboxMode = "never"
	SandboxAuto   SandboxMode = "auto"
	SandboxAlways SandboxMode = "always"
)

// Hook is one declarative side effect a trove can request, parsed out of
// its manifest metadata (a superset of what pkgfmt.Package itself
// carries, since declarative hooks are Conary-native and have no
// equivalent in the legacy RPM/DEB/Arch formats).
type Hook struct {
	Kind HookKind
	Args map[string]string
}

// HookKind names the declarative hook families the host understands.
type HookKind string

const (
	HookUser     HookKind = "user"
	HookGroup    HookKind = "group"
	HookDir      HookKind = "dir"
	HookSystemd  HookKind = "systemd-enable"
	HookTmpfiles HookKind = "tmpfiles"
	HookSysctl   HookKind = "sysctl"
)

// Host executes hooks and legacy scriptlets against an install root.
type Host struct {
	Root        string
	SandboxMode SandboxMode
}

// New returns a Host targeting root, the install root every hook and
// scriptlet is scoped to.
func New(root string, mode SandboxMode) *Host {
	return &Host{Root: root, SandboxMode: mode}
}

// IsLiveRoot reports whether the host is operating directly on the
// running system rather than a staged target root.
func (h *Host) IsLiveRoot() bool {
	return h.Root == "/"
}

// RunDeclarative executes hooks in order, stopping at the first error.
// Callers decide whether that error is fatal (pre-install) or logged and
// surfaced (post-install) per §4.5's failure policy.
func (h *Host) RunDeclarative(hooks []Hook) error {
	for _, hook := range hooks {
		if err := h.run(hook); err != nil {
			return fmt.Errorf("scriptlet: hook %s failed: %w", hook.Kind, err)
		}
	}
	return nil
}

func (h *Host) run(hook Hook) error {
	log.WithComponent("scriptlet").Debug().Str("kind", string(hook.Kind)).Str("root", h.Root).Msg("running hook")
	switch hook.Kind {
	case HookUser:
		_, err := h.CreateUser(hook.Args["name"], hook.Args["system"] == "true", optionalArg(hook.Args, "home"), optionalArg(hook.Args, "shell"), optionalArg(hook.Args, "group"))
		return err
	case HookGroup:
		_, err := h.CreateGroup(hook.Args["name"], hook.Args["system"] == "true")
		return err
	case HookDir:
		return h.CreateDir(hook.Args["path"], hook.Args["owner"], hook.Args["group"], hook.Args["mode"])
	case HookSystemd:
		return h.SystemdEnable(hook.Args["unit"])
	case HookTmpfiles:
		return h.WriteTmpfilesEntry(hook.Args["name"], hook.Args["content"])
	case HookSysctl:
		return h.WriteSysctlEntry(hook.Args["name"], hook.Args["content"])
	default:
		return fmt.Errorf("unknown hook kind %q", hook.Kind)
	}
}

func optionalArg(args map[string]string, key string) string {
	return args[key]
}

// Phase selects which legacy scriptlet phase(s) run for a given
// transaction step, honoring the platform convention named in §4.5:
// RPM/DEB run pre/post-install for both fresh installs and upgrades
// (with an argument distinguishing the two); Arch uses distinct
// pre_upgrade/post_upgrade and skips pre-remove/post-remove of the old
// package during an upgrade.
func Phase(format pkgfmt.SourceFormat, step string, isUpgrade bool) pkgfmt.ScriptletPhase {
	switch format {
	case pkgfmt.FormatArch:
		switch step {
		case "pre-install":
			if isUpgrade {
				return pkgfmt.PhasePreUpgrade
			}
			return pkgfmt.PhasePreInstall
		case "post-install":
			if isUpgrade {
				return pkgfmt.PhasePostUpgrade
			}
			return pkgfmt.PhasePostInstall
		case "pre-remove":
			if isUpgrade {
				return "" // Arch does not run the old package's pre-remove during upgrade
			}
			return pkgfmt.PhasePreRemove
		case "post-remove":
			if isUpgrade {
				return ""
			}
			return pkgfmt.PhasePostRemove
		}
	default: // RPM/DEB semantics
		switch step {
		case "pre-install":
			return pkgfmt.PhasePreInstall
		case "post-install":
			return pkgfmt.PhasePostInstall
		case "pre-remove":
			return pkgfmt.PhasePreRemove
		case "post-remove":
			return pkgfmt.PhasePostRemove
		}
	}
	return ""
}
