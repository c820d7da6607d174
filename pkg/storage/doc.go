// Package storage holds the user directories that back HTTP Basic
// authentication when accounts live outside the configuration file.
//
// Adapters (postgres, and the memory cache that fronts it) implement
// basic.UserStore. This package contains only shared sentinel errors.
package storage
