// Package services defines shared utilities consumed by the merge pipeline and
// its external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, operation names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is and reported as stable kinds over IPC.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform.
package services
