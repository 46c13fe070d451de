// Package preflight provides readiness checks for the directories and
// external tools splicer depends on.
//
// The daemon logs failing checks at startup and reports every result through
// Status so `splicer status` can show why a merge would fail before one is
// attempted.
package preflight
