package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTimemark is reported before ffmpeg has produced any output time.
const DefaultTimemark = "00:00:00"

// Progress is one relayed snapshot of a running merge.
type Progress struct {
	Percent  int     `json:"percent"`
	Timemark string  `json:"timemark"`
	FPS      float64 `json:"fps"`
}

// progressParser folds `-progress pipe:1` key=value lines into snapshots.
// A snapshot is produced each time a block ends with a progress= line.
type progressParser struct {
	totalSeconds float64
	outSeconds   float64
	haveTime     bool
	fps          float64
	percent      int
}

func newProgressParser(totalSeconds float64) *progressParser {
	if totalSeconds < 0 || math.IsNaN(totalSeconds) || math.IsInf(totalSeconds, 0) {
		totalSeconds = 0
	}
	return &progressParser{totalSeconds: totalSeconds}
}

// Feed consumes one stdout line and reports a snapshot when a block completes.
func (p *progressParser) Feed(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outSeconds = float64(us) / 1e6
			p.haveTime = true
		}
	case "out_time":
		if !p.haveTime {
			if secs, ok := parseClock(value); ok {
				p.outSeconds = secs
				p.haveTime = true
			}
		}
	case "fps":
		if fps, err := strconv.ParseFloat(value, 64); err == nil && fps >= 0 {
			p.fps = fps
		}
	case "progress":
		snapshot := p.snapshot(value == "end")
		p.haveTime = false
		return snapshot, true
	}
	return Progress{}, false
}

func (p *progressParser) snapshot(final bool) Progress {
	percent := p.percent
	if p.totalSeconds > 0 {
		percent = int(p.outSeconds / p.totalSeconds * 100)
	}
	if final {
		percent = 100
	}
	percent = max(0, min(100, percent))
	if percent < p.percent {
		percent = p.percent
	}
	p.percent = percent

	timemark := DefaultTimemark
	if p.outSeconds > 0 {
		timemark = FormatTimemark(p.outSeconds)
	}
	return Progress{Percent: percent, Timemark: timemark, FPS: p.fps}
}

// FormatTimemark renders seconds as HH:MM:SS.cc.
func FormatTimemark(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return DefaultTimemark
	}
	centis := int64(math.Floor(seconds * 100))
	hours := centis / 360000
	centis %= 360000
	minutes := centis / 6000
	centis %= 6000
	secs := centis / 100
	centis %= 100
	return fmt.Sprintf("%02d:%02d:%02d.%02d", hours, minutes, secs, centis)
}

func parseClock(value string) (float64, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	total := float64(hours)*3600 + float64(minutes)*60 + secs
	if total < 0 {
		return 0, false
	}
	return total, true
}
