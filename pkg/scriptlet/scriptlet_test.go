package scriptlet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
)

func TestParseSystemdInstallSection(t *testing.T) {
	content := `[Unit]
Description=Test Service

[Service]
ExecStart=/usr/bin/test

[Install]
WantedBy=multi-user.target graphical.target
RequiredBy=critical.target
`
	wants := parseSystemdInstallSection(content, "WantedBy")
	if len(wants) != 2 || wants[0] != "multi-user.target" || wants[1] != "graphical.target" {
		t.Fatalf("unexpected WantedBy: %v", wants)
	}
	requires := parseSystemdInstallSection(content, "RequiredBy")
	if len(requires) != 1 || requires[0] != "critical.target" {
		t.Fatalf("unexpected RequiredBy: %v", requires)
	}
}

func TestComputeRelativeUnitPath(t *testing.T) {
	root := "/tmp/rootfs"
	unitPath := filepath.Join(root, "usr/lib/systemd/system/sshd.service")
	got := computeRelativeUnitPath(unitPath, root)
	want := "../../../../usr/lib/systemd/system/sshd.service"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSystemdEnableTargetCreatesSymlink(t *testing.T) {
	root := t.TempDir()
	unitDir := filepath.Join(root, "usr/lib/systemd/system")
	if err := os.MkdirAll(unitDir, 0755); err != nil {
		t.Fatal(err)
	}
	unitContent := `[Unit]
Description=Test Service

[Service]
ExecStart=/usr/bin/test

[Install]
WantedBy=multi-user.target
`
	if err := os.WriteFile(filepath.Join(unitDir, "test.service"), []byte(unitContent), 0644); err != nil {
		t.Fatal(err)
	}

	h := New(root, SandboxAuto)
	if err := h.SystemdEnable("test.service"); err != nil {
		t.Fatalf("SystemdEnable: %v", err)
	}

	link := filepath.Join(root, "etc/systemd/system/multi-user.target.wants/test.service")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected symlink to exist: %v", err)
	}
	if target != "../../../../usr/lib/systemd/system/test.service" {
		t.Fatalf("unexpected symlink target: %q", target)
	}
}

func TestPhaseSelectionRPMRunsPrePostRemoveOnUpgrade(t *testing.T) {
	if p := Phase(pkgfmt.FormatRPM, "pre-remove", true); p != pkgfmt.PhasePreRemove {
		t.Fatalf("expected RPM to run pre-remove on upgrade, got %q", p)
	}
}

func TestPhaseSelectionArchSkipsPreRemoveOnUpgrade(t *testing.T) {
	if p := Phase(pkgfmt.FormatArch, "pre-remove", true); p != "" {
		t.Fatalf("expected Arch to skip pre-remove on upgrade, got %q", p)
	}
	if p := Phase(pkgfmt.FormatArch, "pre-install", true); p != pkgfmt.PhasePreUpgrade {
		t.Fatalf("expected Arch pre-install-on-upgrade to map to pre_upgrade, got %q", p)
	}
}

func TestCreateDirUnderTargetRoot(t *testing.T) {
	root := t.TempDir()
	h := New(root, SandboxNever)
	if err := h.CreateDir("var/lib/conary", "", "", "0750"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "var/lib/conary"))
	if err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory")
	}
}

func TestCreateDirRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	h := New(root, SandboxNever)
	if err := h.CreateDir("../escape", "", "", ""); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}
