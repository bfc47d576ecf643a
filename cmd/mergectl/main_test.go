package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/princekumarofficial/statements-service/internal/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSegmentsCommand(t *testing.T) {
	out, err := execute(t, "segments", "10", "12.5", "15")
	if err != nil {
		t.Fatalf("segments failed: %v", err)
	}
	for _, want := range []string{"22.500", "37.500", "Total duration: 37.500s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected %q in output:\n%s", want, out)
		}
	}

	if _, err := execute(t, "segments", "ten"); err == nil {
		t.Fatal("Expected an error for a non-numeric duration")
	}
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	if err != nil {
		t.Fatalf("presets failed: %v", err)
	}
	for _, want := range []string{"low", "medium (default)", "high", "2500k"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestSessionsCommand_EmptyStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	out, err := execute(t, "sessions", "--db", db)
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if !strings.Contains(out, "Uploads") || !strings.Contains(out, "Merges") {
		t.Fatalf("Unexpected output:\n%s", out)
	}
}

func TestFileSource_PresentsCompletedGroup(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.mp4", "b.mp4"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	src, err := newFileSource("m1", paths, []float64{4.5})
	if err != nil {
		t.Fatal(err)
	}
	got := src.GroupSessions("m1", localOwner)
	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(got))
	}
	if got[0].Status != types.UploadCompleted || got[1].Group.VideoIndex != 1 {
		t.Fatalf("Unexpected sessions: %+v", got)
	}
	if got[0].Group.DurationSeconds != 4.5 || got[1].Group.DurationSeconds != 0 {
		t.Fatalf("Unexpected durations: %v, %v", got[0].Group.DurationSeconds, got[1].Group.DurationSeconds)
	}
	if len(src.GroupSessions("m1", "someone-else")) != 0 {
		t.Fatal("Expected no sessions for another owner")
	}
	if _, err := newFileSource("m1", []string{filepath.Join(dir, "missing.mp4")}, nil); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
