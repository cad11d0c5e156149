package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file kept inside each device directory.
const FileName = "LOCK"

// Holder describes the daemon that owns a device directory.
type Holder struct {
	Device string
	PID    int
	Since  time.Time
}

// HeldError is returned when another daemon already serves the device.
type HeldError struct {
	Holder
	Path string
}

func (e *HeldError) Error() string {
	if e.Since.IsZero() {
		return fmt.Sprintf("device %q already served by PID %d (%s)", e.Device, e.PID, e.Path)
	}
	return fmt.Sprintf("device %q already served by PID %d since %s (%s)",
		e.Device, e.PID, e.Since.Format(time.RFC3339), e.Path)
}

// Lock is an acquired device lock. One meshchatd per device directory.
type Lock struct {
	file   *os.File
	path   string
	holder Holder
}

// Acquire takes an exclusive flock on dir/LOCK for the named device and
// records this process as the holder. Returns *HeldError when another
// process already holds it.
func Acquire(dir, deviceName string) (*Lock, error) {
	lockPath := filepath.Join(dir, FileName)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		held := parseHolder(string(data))
		if held.Device == "" {
			held.Device = deviceName
		}
		return nil, &HeldError{Holder: held, Path: lockPath}
	}

	h := Holder{Device: deviceName, PID: os.Getpid(), Since: time.Now().UTC().Truncate(time.Second)}
	if err := writeHolder(f, h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("record lock holder: %w", err)
	}

	return &Lock{file: f, path: lockPath, holder: h}, nil
}

// Holder reports what this lock recorded on acquisition.
func (l *Lock) Holder() Holder {
	return l.holder
}

// Release drops the lock and removes the file. Safe on a nil receiver and
// safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "device=%s\npid=%d\nsince=%s\n", h.Device, h.PID, h.Since.Format(time.RFC3339))
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "device":
			h.Device = value
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "since":
			h.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
