// Package testsupport holds helpers shared by package tests: a config
// builder rooted in a temp directory, stub tool scripts, and file fixtures.
package testsupport
