package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eachlabs/chorus/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "INFO", false},
		{"debug", "DEBUG", false},
		{" Warning ", "WARN", false},
		{"ERROR", "ERROR", false},
		{"loud", "INFO", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got.String() != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "backend", "openai/gpt-4o")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"backend":"openai/gpt-4o"`) {
		t.Errorf("output = %q, want JSON record", out)
	}

	if _, _, err := New(config.LoggingConfig{Format: "xml"}, &buf); err == nil {
		t.Error("New() accepted an unknown format")
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chorus.log")
	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{File: path}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to both")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Error("record not mirrored to file and stderr")
	}
}

func TestFileWriterRolls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorus.log")
	w, err := OpenFile(path, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	for _, s := range []string{"12345", "67890", "abc", "defghij", "k", "0123456789"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatalf("Write(%q) error = %v", s, err)
		}
	}

	want := map[string]string{
		path:        "0123456789",
		path + ".1": "k",
		path + ".2": "abcdefghij",
	}
	for name, content := range want {
		got, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", filepath.Base(name), err)
		}
		if string(got) != content {
			t.Errorf("%s = %q, want %q", filepath.Base(name), got, content)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("%s.3 exists, want at most 2 backups", filepath.Base(path))
	}
}

func TestFileWriterAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorus.log")
	if err := os.WriteFile(path, []byte("123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := OpenFile(path, 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("ab"))
	w.Close()

	if got, _ := os.ReadFile(path + ".1"); string(got) != "123456789" {
		t.Errorf("backup = %q, want the existing content", got)
	}
	if got, _ := os.ReadFile(path); string(got) != "ab" {
		t.Errorf("live file = %q, want %q", got, "ab")
	}
}

func TestFileWriterDiscard(t *testing.T) {
	w, err := OpenFile("-", 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := w.Write([]byte("gone")); n != 4 || err != nil {
		t.Errorf("Write() = %d, %v", n, err)
	}
}
