package transcoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// ReadProgress consumes ffmpeg "-progress" key=value output until EOF and
// forwards it as structured reports. total is the expected output length in
// seconds; when it is unknown only the final report is emitted.
func ReadProgress(r io.Reader, total float64, fn ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	var outTime time.Duration
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			outTime = time.Duration(us) * time.Microsecond
		case "progress":
			if fn == nil {
				continue
			}
			if value == "end" {
				fn(Progress{Fraction: 1, OutTime: outTime, Done: true})
				continue
			}
			if total > 0 {
				fn(Progress{Fraction: clamp01(outTime.Seconds() / total), OutTime: outTime})
			}
		}
	}
	return scanner.Err()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
