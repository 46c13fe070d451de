// Package ffmpeg spawns the concat run, relays `-progress` output as
// percentage snapshots, and cancels the process on request.
//
// A Handle delivers at most one terminal event. Once Cancel has marked the
// handle killed, neither progress nor terminal events reach the callback.
// The concat script is removed after the process exits on every path.
package ffmpeg
