package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"splicer/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
// A missing or unparsable format duration falls back to the longest stream.
func (r Result) DurationSeconds() float64 {
	if duration := parseFloat(r.Format.Duration); duration > 0 {
		return duration
	}
	var longest float64
	for _, stream := range r.Streams {
		if d := parseFloat(stream.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// Info is the partial-success metadata answer for a single file. Error is set
// when ffprobe failed; SizeBytes is still populated from the filesystem.
type Info struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	VideoStreams    int     `json:"video_streams"`
	AudioStreams    int     `json:"audio_streams"`
	Error           string  `json:"error,omitempty"`
}

// MediaInfo returns duration and size for path. A missing file is an error; a
// probe failure is not, and is reported through Info.Error instead.
func MediaInfo(ctx context.Context, binary, path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, services.Wrap(services.ErrValidation, "ffprobe", "media info", fmt.Sprintf("file not found: %s", path), nil)
		}
		return Info{}, services.Wrap(services.ErrIO, "ffprobe", "media info", "stat", err)
	}
	info := Info{SizeBytes: stat.Size()}

	result, err := Inspect(ctx, binary, path)
	if err != nil {
		info.Error = services.Wrap(services.ErrProbe, "ffprobe", "media info", "failed to read media metadata", err).Error()
		return info, nil
	}
	info.DurationSeconds = result.DurationSeconds()
	info.VideoStreams = result.VideoStreamCount()
	info.AudioStreams = result.AudioStreamCount()
	return info, nil
}

// TotalDuration sums the probed durations of paths. Files that fail to probe
// contribute nothing; the returned error reports the first such failure.
func TotalDuration(ctx context.Context, binary string, paths []string) (float64, error) {
	var (
		total    float64
		firstErr error
	)
	for _, path := range paths {
		result, err := Inspect(ctx, binary, path)
		if err != nil {
			if firstErr == nil {
				firstErr = services.Wrap(services.ErrProbe, "ffprobe", "duration", path, err)
			}
			continue
		}
		if d := result.DurationSeconds(); d > 0 {
			total += d
		}
	}
	return total, firstErr
}

// parseFloat returns 0 for empty, malformed and non-finite values.
func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
