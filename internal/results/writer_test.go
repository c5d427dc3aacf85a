package results

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestWriteAllWritesOneFilePerResult(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, false, nil, zaptest.NewLogger(t))

	results := []models.GenerationResult{
		{Index: 0, Text: "alpha"},
		{Index: 1, Text: ""},
		{Index: 2, Text: "gamma\nwith newline"},
	}
	artifacts, err := w.WriteAll(context.Background(), results)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("got %d artifacts", len(artifacts))
	}

	want := []string{"llama4_output_0.txt", "llama4_output_1.txt", "llama4_output_2.txt"}
	got := listDir(t, dir)
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("file %d = %s, want %s", i, got[i], name)
		}
		if content := readFile(t, filepath.Join(dir, name)); content != results[i].Text {
			t.Errorf("%s content = %q, want %q", name, content, results[i].Text)
		}
		if !filepath.IsAbs(artifacts[i].Path) {
			t.Errorf("artifact path not absolute: %s", artifacts[i].Path)
		}
	}
}

func TestWriteOverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llama4_output_0.txt")
	if err := os.WriteFile(path, []byte("a much longer stale output from a previous run"), 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(dir, false, nil, zaptest.NewLogger(t))
	if _, err := w.Write(context.Background(), models.GenerationResult{Index: 0, Text: "fresh"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readFile(t, path); got != "fresh" {
		t.Errorf("content = %q, want fresh", got)
	}
}

func TestWriteLogsAbsolutePath(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dir := t.TempDir()
	w := NewWriter(dir, false, nil, zap.New(core))

	if _, err := w.Write(context.Background(), models.GenerationResult{Index: 4, Text: "x"}); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("Output saved").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if p := entries[0].ContextMap()["path"]; p != filepath.Join(dir, "llama4_output_4.txt") {
		t.Errorf("logged path = %v", p)
	}
}

func TestWriteAllAbortsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory occupying the target name makes that single write fail.
	if err := os.Mkdir(filepath.Join(dir, "llama4_output_1.txt"), 0755); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(dir, false, nil, zaptest.NewLogger(t))
	results := []models.GenerationResult{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}}
	artifacts, err := w.WriteAll(context.Background(), results)

	var wErr *apperrors.WriteError
	if !errors.As(err, &wErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if wErr.Filename != "llama4_output_1.txt" {
		t.Errorf("failed filename = %s", wErr.Filename)
	}
	if len(artifacts) != 1 {
		t.Errorf("written = %d, want 1", len(artifacts))
	}
	if _, statErr := os.Stat(filepath.Join(dir, "llama4_output_2.txt")); !os.IsNotExist(statErr) {
		t.Error("writes after the failure must not be attempted")
	}
}

func TestWriteAllContinuesAndAggregates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"llama4_output_0.txt", "llama4_output_2.txt"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}

	w := NewWriter(dir, true, nil, zaptest.NewLogger(t))
	results := []models.GenerationResult{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}, {Index: 3, Text: "d"}}
	artifacts, err := w.WriteAll(context.Background(), results)

	if !apperrors.IsWrite(err) {
		t.Fatalf("expected write error, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("aggregated %d errors, want 2", n)
	}
	if len(artifacts) != 2 || artifacts[0].Filename != "llama4_output_1.txt" || artifacts[1].Filename != "llama4_output_3.txt" {
		t.Errorf("written artifacts = %+v", artifacts)
	}
}

type recordingMirror struct {
	names []string
	err   error
}

func (m *recordingMirror) Mirror(_ context.Context, a models.ResultArtifact) error {
	m.names = append(m.names, a.Filename)
	return m.err
}

func TestWriteMirrorsArtifacts(t *testing.T) {
	mirror := &recordingMirror{}
	w := NewWriter(t.TempDir(), false, mirror, zaptest.NewLogger(t))

	if _, err := w.WriteAll(context.Background(), []models.GenerationResult{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(mirror.names) != 2 || mirror.names[1] != "llama4_output_1.txt" {
		t.Errorf("mirrored = %v", mirror.names)
	}

	failing := &recordingMirror{err: errors.New("bucket unreachable")}
	w = NewWriter(t.TempDir(), false, failing, zaptest.NewLogger(t))
	_, err := w.WriteAll(context.Background(), []models.GenerationResult{{Index: 0, Text: "a"}})
	if !apperrors.IsWrite(err) {
		t.Errorf("mirror failure should be a write error, got %v", err)
	}
}
