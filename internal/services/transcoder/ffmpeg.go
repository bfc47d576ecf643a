package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/services"
)

var commandContext = exec.CommandContext

// waitDelay bounds how long Wait blocks on pipes after the process is killed.
const waitDelay = 5 * time.Second

const stderrTailBytes = 4096

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

func NewFFmpeg(cfg config.Transcoder, logger *slog.Logger) *FFmpeg {
	f := &FFmpeg{ffmpeg: cfg.FFmpegPath, ffprobe: cfg.FFprobePath, logger: logger}
	if strings.TrimSpace(f.ffmpeg) == "" {
		f.ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(f.ffprobe) == "" {
		f.ffprobe = "ffprobe"
	}
	return f
}

// Available checks both binaries resolve and ffmpeg actually runs.
func (f *FFmpeg) Available(ctx context.Context) error {
	for _, bin := range []string{f.ffmpeg, f.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return services.Wrap(services.ErrToolUnavailable, bin, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := commandContext(ctx, f.ffmpeg, "-hide_banner", "-version")
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		return services.Wrap(services.ErrToolUnavailable, f.ffmpeg+" -version", err)
	}
	return nil
}

func (f *FFmpeg) Normalize(ctx context.Context, req NormalizeRequest, progress ProgressFunc) error {
	if req.Width <= 0 || req.Height <= 0 || req.Framerate <= 0 {
		return fmt.Errorf("normalize: invalid target %dx%d@%.2f", req.Width, req.Height, req.Framerate)
	}
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s",
		req.Width, req.Height, req.Width, req.Height, formatRate(req.Framerate))

	args := []string{"-i", req.Input}
	if !req.HasAudio {
		// Concat by stream copy needs every part to carry the same streams.
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000", "-shortest")
	}
	args = append(args,
		"-map", "0:v:0",
	)
	if req.HasAudio {
		args = append(args, "-map", "0:a:0")
	} else {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k", "-ar", "48000", "-ac", "2",
		req.Output,
	)
	return f.run(ctx, "normalize", args, req.Duration, progress)
}

func (f *FFmpeg) Concatenate(ctx context.Context, req ConcatRequest, progress ProgressFunc) error {
	if len(req.Inputs) == 0 {
		return errors.New("concatenate: no inputs")
	}
	listPath := req.ListPath
	if listPath == "" {
		listPath = req.Output + ".txt"
	}
	if err := WriteConcatList(listPath, req.Inputs); err != nil {
		return err
	}
	args := []string{
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", "-movflags", "+faststart",
		req.Output,
	}
	return f.run(ctx, "concatenate", args, req.Duration, progress)
}

func (f *FFmpeg) Compress(ctx context.Context, req CompressRequest, progress ProgressFunc) error {
	p := req.Preset
	speed := p.EncoderSpeed
	if speed == "" {
		speed = "medium"
	}
	args := []string{
		"-i", req.Input,
		"-c:v", "libx264",
		"-preset", speed,
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", "yuv420p",
	}
	if p.MaxBitrate != "" {
		args = append(args, "-maxrate", p.MaxBitrate)
		if buf, ok := doubleBitrate(p.MaxBitrate); ok {
			args = append(args, "-bufsize", buf)
		}
	}
	args = append(args, "-c:a", "aac")
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}
	args = append(args, "-movflags", "+faststart", req.Output)
	return f.run(ctx, "compress", args, req.Duration, progress)
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string, total float64, progress ProgressFunc) error {
	full := append([]string{"-y", "-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:1"}, args...)
	cmd := commandContext(ctx, f.ffmpeg, full...) //nolint:gosec
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: stdout pipe: %w", op, err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrToolUnavailable, op, err)
		}
		return fmt.Errorf("%s: start ffmpeg: %w", op, err)
	}

	readErr := ReadProgress(stdout, total, progress)
	waitErr := cmd.Wait()
	if waitErr != nil {
		return f.commandError(ctx, op, waitErr, stderr.String())
	}
	if readErr != nil {
		f.logger.Warn("ffmpeg progress stream ended with error", "op", op, "error", readErr)
	}
	f.logger.Debug("ffmpeg finished", "op", op, "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (f *FFmpeg) commandError(ctx context.Context, op string, err error, detail string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, op+" killed after deadline", ctx.Err())
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return services.Wrap(services.ErrToolUnavailable, op, err)
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %s", op, err, detail)
}

// WriteConcatList writes an ffmpeg concat demuxer list.
func WriteConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, in := range inputs {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(in, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(exitErr.Stderr)
	}
	return ""
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// doubleBitrate turns "2500k" into "5000k" for the rate-control buffer.
func doubleBitrate(rate string) (string, bool) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return "", false
	}
	suffix := ""
	if last := rate[len(rate)-1]; last == 'k' || last == 'K' || last == 'm' || last == 'M' {
		suffix = string(last)
		rate = rate[:len(rate)-1]
	}
	n, err := strconv.ParseFloat(rate, 64)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.FormatFloat(n*2, 'f', -1, 64) + suffix, true
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

var _ Transcoder = (*FFmpeg)(nil)
