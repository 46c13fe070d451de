// Package daemonctl starts and stops splicerd on behalf of the CLI.
//
// Start launches a detached splicerd and waits for its socket. Stop asks the
// daemon to shut down, which cancels any running merge and deletes its
// partial output, then waits for the socket to go away before falling back
// to killing the process.
package daemonctl
