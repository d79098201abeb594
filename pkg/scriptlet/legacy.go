package scriptlet

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
)

// legacyScriptTimeout bounds how long a converted package's imperative
// scriptlet may run before it is killed, so a misbehaving legacy script
// can't hang a transaction indefinitely.
const legacyScriptTimeout = 2 * time.Minute

// RunLegacy executes a converted package's imperative scriptlet for the
// given phase. arg is passed to the script as its first argument; the
// engine passes "1" for a fresh install, "2" for either package's side
// of an upgrade, and "0" for a plain removal.
func (h *Host) RunLegacy(ctx context.Context, s pkgfmt.Scriptlet, arg string) error {
	if s.Body == "" {
		return nil
	}

	interpreter := s.Interpreter
	if interpreter == "" {
		interpreter = "/bin/sh"
	}

	ctx, cancel := context.WithTimeout(ctx, legacyScriptTimeout)
	defer cancel()

	if h.shouldSandbox() {
		return h.runSandboxed(ctx, interpreter, s, arg)
	}
	return h.runUnsandboxed(ctx, interpreter, s, arg)
}

// shouldSandbox decides whether to wrap legacy scriptlet execution in a
// restricted environment, based on the configured SandboxMode. "auto"
// sandboxes whenever the scriptlet is running against a non-live root,
// since the sandbox is cheap insurance there and changes nothing the
// caller would have relied on.
func (h *Host) shouldSandbox() bool {
	switch h.SandboxMode {
	case SandboxAlways:
		return true
	case SandboxNever:
		return false
	default: // auto
		return !h.IsLiveRoot()
	}
}

func (h *Host) runUnsandboxed(ctx context.Context, interpreter string, s pkgfmt.Scriptlet, arg string) error {
	cmd := exec.CommandContext(ctx, interpreter, append(append([]string{}, s.Flags...), "-")...)
	cmd.Stdin = stringsReader(s.Body)
	cmd.Env = append(os.Environ(), "CONARY_ROOT="+h.Root)
	cmd.Args = append(cmd.Args, arg)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return &HookFailedError{Hook: string(s.Phase), Detail: string(out), Err: err}
	}
	log.WithComponent("scriptlet").Info().Str("phase", string(s.Phase)).Msg("legacy scriptlet completed")
	return nil
}

// runSandboxed runs the scriptlet under bwrap (bubblewrap) with read-only
// views of the host's /usr, /bin, and /lib, the target root bound
// read-write at /target, no network, and a private /tmp, falling back to
// unsandboxed execution with a warning if bwrap isn't installed — a
// missing sandbox tool should not block adoption of legacy packages
// entirely.
func (h *Host) runSandboxed(ctx context.Context, interpreter string, s pkgfmt.Scriptlet, arg string) error {
	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		log.WithComponent("scriptlet").Warn().Msg("bwrap not found, running legacy scriptlet unsandboxed")
		return h.runUnsandboxed(ctx, interpreter, s, arg)
	}

	absRoot, err := filepath.Abs(h.Root)
	if err != nil {
		return err
	}

	args := []string{
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/bin", "/bin",
		"--ro-bind", "/lib", "/lib",
		"--bind", absRoot, "/target",
		"--tmpfs", "/tmp",
		"--proc", "/proc",
		"--dev", "/dev",
		"--unshare-net",
		"--die-with-parent",
		interpreter,
	}
	args = append(args, s.Flags...)
	args = append(args, "-", arg)

	cmd := exec.CommandContext(ctx, bwrap, args...)
	cmd.Stdin = stringsReader(s.Body)
	cmd.Env = []string{"CONARY_ROOT=/target"}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return &HookFailedError{Hook: string(s.Phase), Detail: string(out), Err: err}
	}
	log.WithComponent("scriptlet").Info().Str("phase", string(s.Phase)).Msg("sandboxed legacy scriptlet completed")
	return nil
}

func stringsReader(s string) *os.File {
	r, w, err := os.Pipe()
	if err != nil {
		return nil
	}
	go func() {
		defer w.Close()
		w.WriteString(s)
	}()
	return r
}
