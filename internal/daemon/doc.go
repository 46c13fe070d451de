// Package daemon hosts the long-running splicer process.
//
// The Daemon holds a file lock so only one instance serves a state
// directory, owns the merge controller and optional history ledger, and
// buffers each job's events so IPC clients can poll them by sequence
// number. Start sweeps concat scripts left by crashed runs.
package daemon
