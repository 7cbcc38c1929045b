package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLastEntry(t *testing.T, path string) LogEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := splitLines(data)
	if len(lines) == 0 {
		t.Fatalf("log file %s has no entries", path)
	}
	var entry LogEntry
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	return entry
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

func TestLoggerRedactsSensitiveFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camgate.log")
	l, err := NewLogger("session", DEBUG, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	l.Info("device auth issued", Fields{
		"password": "hunter2",
		"digest":   "abcdef",
		"dev_auth": "base64sig",
		"serial":   "CAM123",
	})

	entry := readLastEntry(t, path)
	if entry.Fields["password"] != redactedValue {
		t.Fatalf("password not redacted: %+v", entry.Fields)
	}
	if entry.Fields["digest"] != redactedValue {
		t.Fatalf("digest not redacted: %+v", entry.Fields)
	}
	if entry.Fields["dev_auth"] != redactedValue {
		t.Fatalf("dev_auth not redacted: %+v", entry.Fields)
	}
	if entry.Fields["serial"] != "CAM123" {
		t.Fatalf("unrelated field was altered: %+v", entry.Fields)
	}
}

func TestWithSerialTagsEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camgate.log")
	l, err := NewLogger("session", DEBUG, path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	l.WithSerial("CAM456").Info("resolved device", nil)

	entry := readLastEntry(t, path)
	if entry.Serial != "CAM456" {
		t.Fatalf("entry.Serial = %q, want CAM456", entry.Serial)
	}
	if _, ok := entry.Fields["serial"]; ok {
		t.Fatalf("serial should be promoted out of Fields, got %+v", entry.Fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"error", ERROR},
		{"garbage", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerLevelRoundTrip(t *testing.T) {
	l, err := NewLogger("proxy", WARN, "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	if got := l.Level(); got != WARN {
		t.Fatalf("Level() = %v, want WARN", got)
	}
	l.SetLevel(DEBUG)
	if got := l.Level(); got != DEBUG {
		t.Fatalf("Level() after SetLevel = %v, want DEBUG", got)
	}
}
