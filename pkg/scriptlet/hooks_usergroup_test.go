package scriptlet

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestCreateGroupDirectAllocatesLowestFreeGID(t *testing.T) {
	root := t.TempDir()
	groupPath := filepath.Join(root, "etc/group")
	if err := os.MkdirAll(filepath.Dir(groupPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(groupPath, []byte("root:x:0:\nwheel:x:10:\n"), 0644); err != nil {
		t.Fatal(err)
	}

	h := New(root, SandboxNever)
	if err := h.createGroupDirect("svc", false); err != nil {
		t.Fatalf("createGroupDirect: %v", err)
	}

	gid, ok := findID(groupPath, "svc")
	if !ok {
		t.Fatalf("svc not found in %s after createGroupDirect", groupPath)
	}
	if gid != normalIDMin {
		t.Fatalf("got gid %d, want %d", gid, normalIDMin)
	}
}

func TestCreateGroupDirectUsesSystemRangeForSystemGroups(t *testing.T) {
	root := t.TempDir()
	h := New(root, SandboxNever)

	if err := h.createGroupDirect("sysgroup", true); err != nil {
		t.Fatalf("createGroupDirect: %v", err)
	}

	gid, ok := findID(filepath.Join(root, "etc/group"), "sysgroup")
	if !ok {
		t.Fatalf("sysgroup not found after createGroupDirect")
	}
	if gid < systemIDMin || gid > systemIDMax {
		t.Fatalf("got gid %d, want in [%d,%d]", gid, systemIDMin, systemIDMax)
	}
}

func TestCreateUserDirectResolvesGroupGID(t *testing.T) {
	root := t.TempDir()
	groupPath := filepath.Join(root, "etc/group")
	if err := os.MkdirAll(filepath.Dir(groupPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(groupPath, []byte("svc:x:500:\n"), 0644); err != nil {
		t.Fatal(err)
	}

	h := New(root, SandboxNever)
	if err := h.createUserDirect("svcuser", true, "", "", "svc"); err != nil {
		t.Fatalf("createUserDirect: %v", err)
	}

	passwdPath := filepath.Join(root, "etc/passwd")
	if !entryExists(passwdPath, "svcuser") {
		t.Fatalf("svcuser not found in %s", passwdPath)
	}

	uid, ok := findID(passwdPath, "svcuser")
	if !ok {
		t.Fatalf("could not read uid for svcuser")
	}
	if uid < systemIDMin || uid > systemIDMax {
		t.Fatalf("got uid %d, want in [%d,%d]", uid, systemIDMin, systemIDMax)
	}

	content, err := os.ReadFile(passwdPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "svcuser:x:" + strconv.Itoa(uid) + ":500::/:/usr/sbin/nologin\n"
	if string(content) != want {
		t.Fatalf("passwd entry = %q, want %q", content, want)
	}
}

func TestCreateUserDirectRejectsUnknownGroup(t *testing.T) {
	root := t.TempDir()
	h := New(root, SandboxNever)

	if err := h.createUserDirect("orphan", false, "", "", "nosuchgroup"); err == nil {
		t.Fatalf("expected error for unresolvable group")
	}
}

