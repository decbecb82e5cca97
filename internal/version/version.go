// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package version carries the build information stamped into the binary
// at link time.
package version

import "fmt"

var (
	// Timestamp is the UTC timestamp of the compilation time.
	Timestamp string
	// CommitHash is the git hash of the code being compiled.
	CommitHash string
	// Version is the version string set at compilation.
	Version string
	// Release indicates whether the binary is a release build.
	Release bool

	// Build holds the assembled build information.
	Build Info
)

// Info is the versioning information for a binary.
type Info struct {
	Timestamp  string `json:"timestamp"`
	CommitHash string `json:"commitHash"`
	Version    string `json:"version"`
	Release    bool   `json:"release"`
}

func init() {
	Build = Info{
		Timestamp:  Timestamp,
		CommitHash: CommitHash,
		Version:    Version,
		Release:    Release,
	}
	if Build.Timestamp == "" || Build.CommitHash == "" {
		Build.Release = false
	}
}

// String formats the build information for humans.
func (info Info) String() string {
	version := info.Version
	if version == "" {
		version = "dev"
	}
	kind := "development"
	if info.Release {
		kind = "release"
	}
	return fmt.Sprintf("%s (%s)\ncommit: %s\nbuilt: %s",
		version, kind, info.CommitHash, info.Timestamp)
}
