package transcoder

import (
	"strings"
	"testing"
	"time"

	"github.com/princekumarofficial/statements-service/internal/types"
)

func TestReadProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"out_time_us=2500000",
		"progress=continue",
		"garbage line",
		"out_time_ms=20000000",
		"progress=continue",
		"out_time_us=-1",
		"progress=end",
	}, "\n")

	var got []Progress
	if err := ReadProgress(strings.NewReader(input), 10, func(p Progress) { got = append(got, p) }); err != nil {
		t.Fatalf("ReadProgress: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(got))
	}
	if got[0].Fraction != 0.25 || got[0].OutTime != 2500*time.Millisecond {
		t.Fatalf("unexpected first report %+v", got[0])
	}
	if got[1].Fraction != 1 {
		t.Fatalf("fraction must clamp at 1, got %v", got[1].Fraction)
	}
	if !got[2].Done {
		t.Fatal("expected final report to be done")
	}
}

func TestReadProgress_UnknownTotal(t *testing.T) {
	var got []Progress
	_ = ReadProgress(strings.NewReader("out_time_us=100\nprogress=continue\nprogress=end\n"), 0, func(p Progress) { got = append(got, p) })
	if len(got) != 1 || !got[0].Done {
		t.Fatalf("expected only the final report, got %+v", got)
	}
}

func TestParseRate(t *testing.T) {
	cases := map[string]float64{"30/1": 30, "25": 25, "0/0": 0, "bad": 0}
	for in, want := range cases {
		if got := parseRate(in); got != want {
			t.Fatalf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConforms(t *testing.T) {
	info := types.VideoInfo{Width: 720, Height: 1280, Framerate: 30, Codec: "h264", HasAudio: true}
	if !Conforms(info, 720, 1280, 30) {
		t.Fatal("expected conforming video")
	}
	info.HasAudio = false
	if Conforms(info, 720, 1280, 30) {
		t.Fatal("silent video must be re-encoded")
	}
	info.HasAudio = true
	if Conforms(info, 1080, 1920, 30) {
		t.Fatal("smaller video must be re-encoded")
	}
}
