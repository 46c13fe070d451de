// Package logs reads the daemon's JSON log file for `splicer logs`.
//
// Tail returns the last N records or everything after a byte offset, and can
// wait for new lines in follow mode. Records can be narrowed to one merge job
// through its job_id field, and Format renders a record as a single console
// line.
package logs
