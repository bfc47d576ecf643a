package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/services"
)

// TestHelperProcess stands in for ffmpeg/ffprobe when the helper env is set.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("TRANSCODER_HELPER_MODE") {
	case "probe":
		fmt.Print(`{"streams":[{"codec_type":"video","codec_name":"h264","width":720,"height":1280,"avg_frame_rate":"30000/1001"},{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"12.500000"}}`)
	case "success":
		fmt.Println("out_time_us=5000000")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=10000000")
		fmt.Println("progress=end")
		output := args[len(args)-1]
		_ = os.WriteFile(output, []byte("video"), 0o644)
	case "fail":
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	case "hang":
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func useHelper(t *testing.T, mode string) *[]string {
	t.Helper()
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "TRANSCODER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func newTestFFmpeg() *FFmpeg {
	return NewFFmpeg(config.Transcoder{}, logging.Discard())
}

func TestProbe_ParsesOutput(t *testing.T) {
	useHelper(t, "probe")

	info, err := newTestFFmpeg().Probe(context.Background(), "/tmp/in.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Width != 720 || info.Height != 1280 {
		t.Fatalf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if info.DurationSeconds != 12.5 {
		t.Fatalf("unexpected duration %v", info.DurationSeconds)
	}
	if info.Framerate < 29.96 || info.Framerate > 29.98 {
		t.Fatalf("unexpected framerate %v", info.Framerate)
	}
	if !info.HasAudio || info.Codec != "h264" {
		t.Fatalf("unexpected stream info %+v", info)
	}
}

func TestCompress_ReportsProgressAndArgs(t *testing.T) {
	captured := useHelper(t, "success")
	out := filepath.Join(t.TempDir(), "out.mp4")

	var mu sync.Mutex
	var fractions []float64
	err := newTestFFmpeg().Compress(context.Background(), CompressRequest{
		Input:    "/tmp/in.mp4",
		Output:   out,
		Preset:   config.QualityPreset{MaxBitrate: "2500k", EncoderSpeed: "slow", CRF: 23, AudioBitrate: "128k"},
		Duration: 10,
	}, func(p Progress) {
		mu.Lock()
		fractions = append(fractions, p.Fraction)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Compress returned error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	if len(fractions) != 3 || fractions[0] != 0.5 || fractions[2] != 1 {
		t.Fatalf("unexpected progress fractions %v", fractions)
	}

	joined := strings.Join(*captured, " ")
	for _, want := range []string{"-preset slow", "-crf 23", "-maxrate 2500k", "-bufsize 5000k", "-b:a 128k", "-progress pipe:1"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args %q", want, joined)
		}
	}
}

func TestRun_FailureIncludesStderr(t *testing.T) {
	useHelper(t, "fail")

	err := newTestFFmpeg().Concatenate(context.Background(), ConcatRequest{
		Inputs: []string{"a.mp4", "b.mp4"},
		Output: filepath.Join(t.TempDir(), "merged.mp4"),
	}, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr detail in error, got %v", err)
	}
	if errors.Is(err, services.ErrTimeout) {
		t.Fatal("plain failure must not be reported as a timeout")
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	useHelper(t, "hang")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := newTestFFmpeg().Normalize(ctx, NormalizeRequest{
		Input: "in.mp4", Output: filepath.Join(t.TempDir(), "n.mp4"),
		Width: 720, Height: 1280, Framerate: 30, HasAudio: true,
	}, nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("process was not killed promptly: %s", elapsed)
	}
}

func TestNormalize_AddsSilentAudio(t *testing.T) {
	captured := useHelper(t, "success")

	err := newTestFFmpeg().Normalize(context.Background(), NormalizeRequest{
		Input: "in.mp4", Output: filepath.Join(t.TempDir(), "n.mp4"),
		Width: 720, Height: 1280, Framerate: 30, HasAudio: false,
	}, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	joined := strings.Join(*captured, " ")
	if !strings.Contains(joined, "anullsrc") || !strings.Contains(joined, "-map 1:a:0") {
		t.Fatalf("expected silent audio track in args %q", joined)
	}
	if !strings.Contains(joined, "scale=720:1280") || !strings.Contains(joined, "fps=30") {
		t.Fatalf("expected scale and fps filter in args %q", joined)
	}
}

func TestAvailable_MissingBinary(t *testing.T) {
	f := NewFFmpeg(config.Transcoder{FFmpegPath: "definitely-not-ffmpeg-xyz", FFprobePath: "definitely-not-ffprobe-xyz"}, logging.Discard())
	if err := f.Available(context.Background()); !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
}

func TestWriteConcatList_EscapesQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := WriteConcatList(path, []string{"/a/one.mp4", "/a/it's.mp4"}); err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}
	data, _ := os.ReadFile(path)
	want := "file '/a/one.mp4'\nfile '/a/it'\\''s.mp4'\n"
	if string(data) != want {
		t.Fatalf("unexpected list:\n%s", data)
	}
}
