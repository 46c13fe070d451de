// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and decodes its format/stream report. MediaInfo layers
// the partial-success contract used at the IPC boundary on top: a file that
// exists always yields its size, even when ffprobe itself fails. TotalDuration
// feeds the merge progress percentage.
package ffprobe
