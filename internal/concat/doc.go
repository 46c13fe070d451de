// Package concat owns the ephemeral concat demuxer script that lists merge
// inputs for ffmpeg.
//
// Scripts get a time-based name with a random suffix so leftovers from a
// crashed run never collide with a new one, and Sweep clears such leftovers
// at daemon start.
package concat
