// Package executor defines the boundary to whatever compiles and runs Rust
// snippets. The playground subpackage talks to play.rust-lang.org; the
// docker subpackage runs rustc in local containers.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CompileFailureMarker is the stderr fragment rustc's driver prints when a
// snippet does not build.
const CompileFailureMarker = "could not compile"

// ErrShareUnsupported is returned by backends that cannot publish gists.
var ErrShareUnsupported = errors.New("executor: sharing is not supported by this backend")

// Request describes one compile-and-run.
type Request struct {
	Code    string `json:"code"`
	Channel string `json:"channel"` // stable, beta or nightly
	Mode    string `json:"mode"`    // debug or release
	Edition string `json:"edition"`
}

// Result is the outcome reported by the backend.
type Result struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// CompileFailed reports whether the snippet did not build.
func (r *Result) CompileFailed() bool {
	return strings.Contains(r.Stderr, CompileFailureMarker)
}

// Executor runs snippets in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	// Share publishes code and returns the gist id the playground URL
	// points at.
	Share(ctx context.Context, code string) (string, error)
}
