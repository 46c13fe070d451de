// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// Merge progress is a stream inside the daemon but the transport is
// request/response, so clients start a merge, receive a job id, and poll
// Events with the last sequence number they saw until a terminal event
// arrives. Follow wraps that loop.
//
// StartMerge rejections travel as an error kind string and are mapped back
// onto the services sentinels on the client side so errors.Is keeps working.
package ipc
