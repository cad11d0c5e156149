package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireRecordsHolder(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "alice")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	data, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	got := parseHolder(string(data))
	if got.Device != "alice" {
		t.Errorf("device = %q, want alice", got.Device)
	}
	if got.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", got.PID, os.Getpid())
	}
	if time.Since(got.Since) > time.Minute {
		t.Errorf("since = %v, want about now", got.Since)
	}
	if h := l.Holder(); h.Device != got.Device || h.PID != got.PID || !h.Since.Equal(got.Since) {
		t.Errorf("Holder() = %+v, file says %+v", l.Holder(), got)
	}
}

func TestReleaseRemovesFile(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "alice")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, FileName)); !os.IsNotExist(err) {
		t.Error("Release should remove the lock file")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "alice")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, "alice")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", held.PID, os.Getpid())
	}
	if held.Device != "alice" {
		t.Errorf("device = %q, want alice", held.Device)
	}
	if !strings.Contains(err.Error(), `device "alice" already served`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestParseHolderToleratesGarbage(t *testing.T) {
	h := parseHolder("junk\npid=abc\nsince=yesterday\n")
	if h.PID != 0 || !h.Since.IsZero() || h.Device != "" {
		t.Errorf("parseHolder() = %+v, want zero value", h)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "alice")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
