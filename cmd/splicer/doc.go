// Package main hosts the splicer CLI entrypoint and command graph.
//
// Commands talk to splicerd over its JSON-RPC socket by default. The global
// --local flag runs the same merge, deletion, probe and history operations in
// this process instead, which is how splicer is used without a daemon.
// Interrupting a merge cancels it and force-deletes the partial output.
package main
