package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Name: "cdn", Level: Warn, Writer: &buf})

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "WARN  [cdn] warn 3") {
		t.Errorf("Expected warn line, got %q", out)
	}
	if !strings.Contains(out, "ERROR [cdn] error 4") {
		t.Errorf("Expected error line, got %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("Injected writers must not receive color codes, got %q", out)
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Name: "cdn", Level: Debug, JSON: true, Writer: &buf})

	logger.Named("tx").Info("committed %s", "abc")

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Unmarshal failed: %v (%q)", err, buf.String())
	}

	if entry.Level != "INFO" {
		t.Errorf("Expected level INFO, got %s", entry.Level)
	}
	if entry.Service != "cdn/tx" {
		t.Errorf("Expected service cdn/tx, got %s", entry.Service)
	}
	if entry.Message != "committed abc" {
		t.Errorf("Expected message 'committed abc', got %q", entry.Message)
	}
}

func TestLogger_Fatal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: Info, Writer: &buf})

	code := -1
	logger.exit = func(c int) { code = c }
	logger.Fatal("boom")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL boom") {
		t.Errorf("Expected fatal line, got %q", buf.String())
	}
}

func TestLogger_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cdn.log")
	logger := New(Options{Level: Info, File: file, NoTerminal: true})

	logger.Info("to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(content), "to file") {
		t.Errorf("Expected log file to contain message, got %q", content)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   Debug,
		"INFO":    Info,
		"":        Info,
		"warning": Warn,
		" error ": Error,
		"Fatal":   Fatal,
	}

	for input, expected := range tests {
		got, err := ParseLevel(input)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", input, err)
			continue
		}
		if got != expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", input, got, expected)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
