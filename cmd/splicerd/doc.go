// Package main runs splicerd, the long-lived process that owns the merge job
// slot and serves the splicer CLI over a Unix socket until it receives a
// signal or a stop request.
package main
