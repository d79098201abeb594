package lock

import (
	"path/filepath"
	"testing"
)

func TestTryAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	l1 := New(path)
	if err := l1.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	l2 := New(path)
	if err := l2.TryAcquire(); err != ErrBusy {
		t.Fatalf("expected ErrBusy from second acquire, got %v", err)
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := l2.TryAcquire(); err != nil {
		t.Fatalf("expected second acquire to succeed after release: %v", err)
	}
	l2.Release()
}

func TestHolderPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")
	l := New(path)
	if err := l.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer l.Release()

	pid, err := HolderPID(path)
	if err != nil {
		t.Fatalf("HolderPID: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("expected positive pid, got %d", pid)
	}
}
