package main

import (
	"strings"
	"testing"

	"github.com/matheus3301/meshchat/internal/protocol"
)

func TestParseSettingsArgs(t *testing.T) {
	patch, err := parseSettingsArgs([]string{"auto-delete=true", "auto-delete-timer=30m", "notifications=false"})
	if err != nil {
		t.Fatalf("parseSettingsArgs() error = %v", err)
	}
	if patch.AutoDeleteEnabled == nil || !*patch.AutoDeleteEnabled {
		t.Errorf("auto-delete = %v, want true", patch.AutoDeleteEnabled)
	}
	if patch.AutoDeleteTimer == nil || *patch.AutoDeleteTimer != 30 {
		t.Errorf("auto-delete-timer = %v, want 30", patch.AutoDeleteTimer)
	}
	if patch.NotificationsEnabled == nil || *patch.NotificationsEnabled {
		t.Errorf("notifications = %v, want false", patch.NotificationsEnabled)
	}
	if patch.AutoConnect != nil {
		t.Errorf("auto-connect should be untouched, got %v", *patch.AutoConnect)
	}
}

func TestParseSettingsArgsRejects(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"auto-delete"},
		{"auto-delete=maybe"},
		{"auto-delete-timer=ten"},
		{"colour=blue"},
	} {
		if _, err := parseSettingsArgs(args); err == nil {
			t.Errorf("parseSettingsArgs(%q) succeeded, want error", args)
		}
	}
}

func TestShareURI(t *testing.T) {
	got := shareURI(&protocol.Profile{ID: "abcd1234", Name: "Ann Lee"})
	want := "meshchat://peer/abcd1234?name=Ann+Lee"
	if got != want {
		t.Errorf("shareURI() = %q, want %q", got, want)
	}
}

func TestRenderQR(t *testing.T) {
	art, err := renderQR("meshchat://peer/abcd1234?name=Ann")
	if err != nil {
		t.Fatalf("renderQR() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("expected a multi-line QR code, got %d lines", len(lines))
	}
	if !strings.ContainsAny(art, "█▀▄") {
		t.Error("QR output has no block characters")
	}
	width := len([]rune(lines[0]))
	for i, line := range lines {
		if len([]rune(line)) != width {
			t.Fatalf("line %d width = %d, want %d", i, len([]rune(line)), width)
		}
	}
}
