// Package deletion force-removes files that resist deletion.
//
// Engine.Delete walks an ordered chain of named strategies: repeated unlink
// attempts with attribute reset and linear backoff, followed by platform
// shell commands. Each attempt is recorded with a typed Outcome. When every
// strategy fails, the Result carries manual remediation text and Err returns
// a *Failure that matches services.ErrDeletionExhausted.
//
// The filesystem, shell and sleeper are injectable so the full schedule can
// be exercised without real locks or delays.
package deletion
