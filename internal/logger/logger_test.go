package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roadwatch/internal/config"
)

func TestLogger_WritesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := NewLogger(&config.Config{LogDirectory: dir})

	l.Info("camera %d opened", 1)
	l.Warning("labels missing")
	l.Error("capture failed")
	l.Close()

	tests := []struct {
		file    string
		want    string
		notWant string
	}{
		{InfoFile, "camera 1 opened", "labels missing"},
		{WarningFile, "labels missing", "capture failed"},
		{ErrorFile, "capture failed", "camera 1 opened"},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(dir, tt.file))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", tt.file, err)
		}
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("%s should contain %q, got %q", tt.file, tt.want, data)
		}
		if strings.Contains(string(data), tt.notWant) {
			t.Errorf("%s should not contain %q", tt.file, tt.notWant)
		}
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir})
	defer l.Close()

	l.Warning("something odd")
	if err := l.CleanLogs(WarningFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, WarningFile))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty warning log, got %d bytes", info.Size())
	}
}

func TestLogger_CleanLogs_UnknownFile(t *testing.T) {
	l := NewNop()

	if err := l.CleanLogs("../secrets.txt"); err == nil {
		t.Error("Expected error for an unknown log file")
	}
	if err := l.CleanLogs(InfoFile); err != nil {
		t.Errorf("Nop logger should accept known files, got %v", err)
	}
}
