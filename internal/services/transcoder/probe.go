package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/princekumarofficial/statements-service/internal/types"
)

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// Probe runs ffprobe against path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return types.VideoInfo{}, errors.New("ffprobe: empty path")
	}

	cmd := commandContext(ctx, f.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	output, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, f.commandError(ctx, "ffprobe", err, exitDetail(err))
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (types.VideoInfo, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var info types.VideoInfo
	var video *probeStream
	for i := range result.Streams {
		s := &result.Streams[i]
		switch strings.ToLower(s.CodecType) {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if video == nil {
		return types.VideoInfo{}, errors.New("ffprobe: no video stream")
	}

	info.Width = video.Width
	info.Height = video.Height
	info.Codec = video.CodecName
	info.Framerate = parseRate(video.AvgFrameRate)
	if info.Framerate <= 0 {
		info.Framerate = parseRate(video.RFrameRate)
	}
	info.DurationSeconds = parseSeconds(result.Format.Duration)
	if info.DurationSeconds <= 0 {
		info.DurationSeconds = parseSeconds(video.Duration)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return types.VideoInfo{}, fmt.Errorf("ffprobe: invalid dimensions %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(raw string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(raw), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
