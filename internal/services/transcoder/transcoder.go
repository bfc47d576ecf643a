package transcoder

import (
	"context"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/types"
)

// Progress is a structured progress report for one transcoder invocation.
type Progress struct {
	// Fraction is 0..1 of the invocation's expected output duration.
	Fraction float64
	OutTime  time.Duration
	Done     bool
}

// ProgressFunc receives progress reports; it may be nil.
type ProgressFunc func(Progress)

type NormalizeRequest struct {
	Input     string
	Output    string
	Width     int
	Height    int
	Framerate float64
	HasAudio  bool
	// Duration is the expected output length in seconds, used for progress.
	Duration float64
}

type ConcatRequest struct {
	Inputs   []string
	Output   string
	ListPath string
	Duration float64
}

type CompressRequest struct {
	Input    string
	Output   string
	Preset   config.QualityPreset
	Duration float64
}

// Transcoder is the external tool the merge pipeline drives. Every method
// must honour ctx cancellation by killing the underlying process.
type Transcoder interface {
	// Available returns services.ErrToolUnavailable when the tool cannot run.
	Available(ctx context.Context) error
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
	Normalize(ctx context.Context, req NormalizeRequest, progress ProgressFunc) error
	Concatenate(ctx context.Context, req ConcatRequest, progress ProgressFunc) error
	Compress(ctx context.Context, req CompressRequest, progress ProgressFunc) error
}

// Conforms reports whether info already matches the normalization target.
func Conforms(info types.VideoInfo, width, height int, framerate float64) bool {
	if info.Width != width || info.Height != height || !info.HasAudio {
		return false
	}
	if info.Codec != "h264" {
		return false
	}
	diff := info.Framerate - framerate
	return diff > -0.01 && diff < 0.01
}
