package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Images maps a release channel to the image providing its rustc.
	// Channels without an image are rejected.
	Images map[string]string
	// MemoryLimit is the maximum amount of memory a container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs a container can use.
	CPULimit float64
	// Timeout bounds compile plus run.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers kept per image.
	PoolSize int
}

// DefaultConfig provides the defaults for a Rust sandbox. There is no
// official beta image, so beta is left out.
func DefaultConfig() Config {
	return Config{
		Images: map[string]string{
			"stable":  "rust:1-slim",
			"nightly": "rustlang/rust:nightly-slim",
		},
		// rustc needs noticeably more room than an interpreter
		MemoryLimit: 512 * 1024 * 1024,
		CPULimit:    1,
		Timeout:     30 * time.Second,
		PoolSize:    2,
	}
}
