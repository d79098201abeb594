package scriptlet

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// System and normal id ranges used when allocating a uid/gid for the
// direct passwd/group edit fallback; these match useradd/groupadd's own
// conventional defaults (Debian's /etc/login.defs SYS_UID_MIN/MAX and
// UID_MIN/MAX).
const (
	systemIDMin = 100
	systemIDMax = 999
	normalIDMin = 1000
	normalIDMax = 60000
)

// UserExists reports whether name is a known user: queried against the
// live system with getent when Root is "/", otherwise parsed directly
// out of the target root's /etc/passwd.
func (h *Host) UserExists(name string) bool {
	if h.IsLiveRoot() {
		return exec.Command("getent", "passwd", name).Run() == nil
	}
	return entryExists(filepath.Join(h.Root, "etc/passwd"), name)
}

// GroupExists reports whether name is a known group.
func (h *Host) GroupExists(name string) bool {
	if h.IsLiveRoot() {
		return exec.Command("getent", "group", name).Run() == nil
	}
	return entryExists(filepath.Join(h.Root, "etc/group"), name)
}

func entryExists(path, name string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if field, _, ok := strings.Cut(scanner.Text(), ":"); ok && field == name {
			return true
		}
	}
	return false
}

// findID looks up the third colon-separated field (uid in passwd, gid in
// group) for the entry named name.
func findID(path, name string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 || fields[0] != name {
			continue
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// nextFreeID scans path's third colon-separated field for ids already in
// use and returns the lowest free id in [min, max]. A missing file is
// treated as an empty id space rather than an error, since the direct
// edit fallback may be creating etc/passwd or etc/group for the first
// time against a bare target root.
func nextFreeID(path string, min, max int) (int, error) {
	used := map[int]bool{}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, err
		}
	} else {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Split(scanner.Text(), ":")
			if len(fields) < 3 {
				continue
			}
			if id, err := strconv.Atoi(fields[2]); err == nil {
				used[id] = true
			}
		}
	}

	for id := min; id <= max; id++ {
		if !used[id] {
			return id, nil
		}
	}
	return 0, fmt.Errorf("scriptlet: no free id available in range %d-%d for %s", min, max, path)
}

// appendEntryLine appends line to path, creating the containing
// directory and the file itself if neither exists yet.
func appendEntryLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// createUserDirect appends a passwd entry for name, allocating the
// lowest free uid in the system or normal range. Used when useradd is
// unavailable, in place of shelling out with --root.
func (h *Host) createUserDirect(name string, system bool, home, shell, group string) error {
	passwdPath := filepath.Join(h.Root, "etc/passwd")

	min, max := normalIDMin, normalIDMax
	if system {
		min, max = systemIDMin, systemIDMax
	}
	uid, err := nextFreeID(passwdPath, min, max)
	if err != nil {
		return err
	}

	gid := uid
	if group != "" {
		resolved, ok := findID(filepath.Join(h.Root, "etc/group"), group)
		if !ok {
			return fmt.Errorf("scriptlet: group %q not found for user %q", group, name)
		}
		gid = resolved
	}

	if home == "" {
		home = "/"
	}
	if shell == "" {
		shell = "/usr/sbin/nologin"
	}

	return appendEntryLine(passwdPath, fmt.Sprintf("%s:x:%d:%d::%s:%s\n", name, uid, gid, home, shell))
}

// createGroupDirect appends a group entry for name, allocating the
// lowest free gid in the system or normal range.
func (h *Host) createGroupDirect(name string, system bool) error {
	groupPath := filepath.Join(h.Root, "etc/group")

	min, max := normalIDMin, normalIDMax
	if system {
		min, max = systemIDMin, systemIDMax
	}
	gid, err := nextFreeID(groupPath, min, max)
	if err != nil {
		return err
	}

	return appendEntryLine(groupPath, fmt.Sprintf("%s:x:%d:\n", name, gid))
}

// CreateUser creates a system or normal user. It returns false without
// error if the user already exists. When useradd is available it is
// used (with --root against a target root), since useradd already knows
// how to keep /etc/passwd, /etc/shadow, and /etc/group consistent; when
// it is not, the user is appended to the root's /etc/passwd directly.
func (h *Host) CreateUser(name string, system bool, home, shell, group string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("scriptlet: user hook missing name")
	}
	if h.UserExists(name) {
		log.WithComponent("scriptlet").Debug().Str("user", name).Msg("user already exists, skipping")
		return false, nil
	}

	if !h.IsLiveRoot() {
		if err := os.MkdirAll(filepath.Join(h.Root, "etc"), 0755); err != nil {
			return false, err
		}
	}

	if _, err := exec.LookPath("useradd"); err != nil {
		log.WithComponent("scriptlet").Debug().Str("user", name).Msg("useradd not available, editing passwd directly")
		if err := h.createUserDirect(name, system, home, shell, group); err != nil {
			return false, fmt.Errorf("scriptlet: direct passwd edit for %s failed: %w", name, err)
		}
		log.WithComponent("scriptlet").Info().Str("user", name).Msg("created user via direct passwd edit")
		return true, nil
	}

	args := []string{}
	if !h.IsLiveRoot() {
		args = append(args, "--root", h.Root)
	}
	if system {
		args = append(args, "--system")
	}
	if home != "" {
		args = append(args, "--home-dir", home)
		if h.IsLiveRoot() {
			args = append(args, "--create-home")
		} else {
			args = append(args, "--no-create-home")
		}
	} else {
		args = append(args, "--no-create-home")
	}
	if shell != "" {
		args = append(args, "--shell", shell)
	}
	if group != "" {
		args = append(args, "--gid", group)
	}
	args = append(args, name)

	if out, err := exec.Command("useradd", args...).CombinedOutput(); err != nil {
		return false, fmt.Errorf("scriptlet: useradd %s failed: %w: %s", name, err, out)
	}
	log.WithComponent("scriptlet").Info().Str("user", name).Msg("created user")
	return true, nil
}

// CreateGroup creates a group, returning false without error if it
// already exists.
func (h *Host) CreateGroup(name string, system bool) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("scriptlet: group hook missing name")
	}
	if h.GroupExists(name) {
		log.WithComponent("scriptlet").Debug().Str("group", name).Msg("group already exists, skipping")
		return false, nil
	}

	if !h.IsLiveRoot() {
		if err := os.MkdirAll(filepath.Join(h.Root, "etc"), 0755); err != nil {
			return false, err
		}
	}

	if _, err := exec.LookPath("groupadd"); err != nil {
		log.WithComponent("scriptlet").Debug().Str("group", name).Msg("groupadd not available, editing group file directly")
		if err := h.createGroupDirect(name, system); err != nil {
			return false, fmt.Errorf("scriptlet: direct group edit for %s failed: %w", name, err)
		}
		log.WithComponent("scriptlet").Info().Str("group", name).Msg("created group via direct group edit")
		return true, nil
	}

	args := []string{}
	if !h.IsLiveRoot() {
		args = append(args, "--root", h.Root)
	}
	if system {
		args = append(args, "--system")
	}
	args = append(args, name)

	if out, err := exec.Command("groupadd", args...).CombinedOutput(); err != nil {
		return false, fmt.Errorf("scriptlet: groupadd %s failed: %w: %s", name, err, out)
	}
	log.WithComponent("scriptlet").Info().Str("group", name).Msg("created group")
	return true, nil
}
