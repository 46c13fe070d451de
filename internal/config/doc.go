// Package config loads, normalizes, and validates splicer configuration.
//
// Configuration lives in a TOML file (by default ~/.config/splicer/config.toml,
// falling back to ./splicer.toml). Missing files are not an error: every field
// has a default, and paths are expanded to absolute form before validation so
// downstream packages never have to deal with "~" or relative directories.
package config
