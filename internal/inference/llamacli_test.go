package inference

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

// writeScript writes an executable shell script standing in for the inference binary.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
	path := filepath.Join(dir, "fake-llama-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeModel(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(path, []byte("GGUF"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIEngineGenerate(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, `printf '%s\n' "$@" > '`+argsFile+`'
while [ $# -gt 0 ]; do
  if [ "$1" = "-p" ]; then shift; printf '  echo: %s  \n' "$1"; fi
  shift
done
`)
	model := writeModel(t, dir)

	engine := NewCLIEngine(script, []string{"--temp", "0"}, zaptest.NewLogger(t))
	m, err := engine.Load(context.Background(), model, 4096, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()

	choices, err := m.Generate(context.Background(), "Say hi", 16)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(choices) != 1 || choices[0].Text != "  echo: Say hi  \n" {
		t.Fatalf("choices = %#v", choices)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"-m", model, "-c", "4096", "-t", "3", "-n", "16", "-p", "Say hi", "--no-display-prompt", "-no-cnv", "--temp", "0"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("argv = %v, want %v", got, want)
	}
}

func TestCLIEngineGenerateStripsEndOfText(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "printf 'Hello world [end of text]\n\n'\n")

	m, err := NewCLIEngine(script, nil, zaptest.NewLogger(t)).Load(context.Background(), writeModel(t, dir), 2048, 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	choices, err := m.Generate(context.Background(), "Hello", 16)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(choices) != 1 || strings.TrimSpace(choices[0].Text) != "Hello world" {
		t.Errorf("choices = %#v", choices)
	}
}

func TestStripEndOfText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello world [end of text]\n", "Hello world "},
		{"Hello world[end of text]", "Hello world"},
		{"  no marker  \n", "  no marker  \n"},
		{"[end of text] appears mid-output\n", "[end of text] appears mid-output\n"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripEndOfText(tt.in); got != tt.want {
			t.Errorf("stripEndOfText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCLIEngineGenerateFailure(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "echo 'failed to allocate context' >&2\nexit 3\n")

	m, err := NewCLIEngine(script, nil, zaptest.NewLogger(t)).Load(context.Background(), writeModel(t, dir), 2048, 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = m.Generate(context.Background(), "x", 1)
	if err == nil {
		t.Fatal("expected generation failure")
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "failed to allocate context") {
		t.Errorf("error should carry exit code and stderr: %v", err)
	}
}

func TestCLIEngineLoadFailures(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "exit 0\n")
	logger := zaptest.NewLogger(t)

	if _, err := NewCLIEngine(script, nil, logger).Load(context.Background(), filepath.Join(dir, "missing.gguf"), 2048, 8); err == nil {
		t.Error("expected failure for missing model")
	}
	if _, err := NewCLIEngine(script, nil, logger).Load(context.Background(), dir, 2048, 8); err == nil {
		t.Error("expected failure when model path is a directory")
	}
	if _, err := NewCLIEngine(filepath.Join(dir, "no-such-binary"), nil, logger).Load(context.Background(), writeModel(t, dir), 2048, 8); err == nil {
		t.Error("expected failure for missing binary")
	}
}

func TestGetSnippet(t *testing.T) {
	if got := getSnippet("short", 10); got != "short" {
		t.Errorf("getSnippet = %q", got)
	}
	if got := getSnippet("0123456789abc", 10); got != "0123456789... (truncated)" {
		t.Errorf("getSnippet = %q", got)
	}
}
