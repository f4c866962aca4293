// Package docker runs snippets with rustc inside throwaway containers. It is
// the offline alternative to the public playground: there is no gist
// service, so Share always fails with executor.ErrShareUnsupported.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/rpg-bot/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

// timeoutExitCode mirrors timeout(1).
const timeoutExitCode = 124

// buildScript compiles $SOURCE and runs the binary. A failed build is
// reported with the same marker the playground uses, so callers detect
// compile failures identically for both backends.
const buildScript = `printf '%s' "$SOURCE" > /tmp/main.rs || exit 1
rustc --edition "$EDITION" $OPT -o /tmp/main /tmp/main.rs || { echo 'error: could not compile ` + "`playground`" + `' >&2; exit 101; }
exec /tmp/main`

// Executor implements executor.Executor using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pools  map[string]*Pool // by channel
}

// New connects to the local daemon, pulls every configured image and starts
// one warm pool per image.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	exec := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pools:  make(map[string]*Pool),
	}

	byImage := make(map[string]*Pool)
	for channel, img := range cfg.Images {
		pool, ok := byImage[img]
		if !ok {
			if err := exec.pull(img); err != nil {
				exec.Close()
				return nil, err
			}
			pool = NewPool(cli, img, cfg, logger)
			pool.Start()
			byImage[img] = pool
		}
		exec.pools[channel] = pool
	}

	return exec, nil
}

func (e *Executor) pull(img string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e.logger.Info("ensuring docker image is available", slog.String("image", img))
	reader, err := e.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pulling %s: %w", img, err)
	}
	defer reader.Close()
	// The pull only completes once the progress stream is drained.
	io.Copy(io.Discard, reader)
	e.logger.Info("docker image is ready", slog.String("image", img))
	return nil
}

// Close stops every pool and the docker client.
func (e *Executor) Close() error {
	stopped := make(map[*Pool]bool)
	for _, p := range e.pools {
		if !stopped[p] {
			p.Stop()
			stopped[p] = true
		}
	}
	return e.cli.Close()
}

// Execute compiles and runs req.Code in a pre-warmed container of the
// requested channel.
func (e *Executor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	pool, ok := e.pools[req.Channel]
	if !ok {
		return nil, fmt.Errorf("docker: no image configured for channel %q", req.Channel)
	}

	start := time.Now()

	containerID, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: acquiring container: %w", err)
	}

	// Containers are single use.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := e.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true})
		if err != nil {
			e.logger.Error("failed to remove container",
				slog.String("id", containerID),
				slog.String("error", err.Error()),
			)
		}
	}()

	executeCtx, executeCancel := context.WithTimeout(ctx, e.config.Timeout)
	defer executeCancel()

	opt := ""
	if req.Mode == "release" {
		opt = "-O"
	}

	execResp, err := e.cli.ContainerExecCreate(executeCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Env: []string{
			"SOURCE=" + req.Code,
			"EDITION=" + req.Edition,
			"OPT=" + opt,
		},
		Cmd: []string{"sh", "-c", buildScript},
	})
	if err != nil {
		return nil, fmt.Errorf("docker: creating exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: attaching to exec: %w", err)
	}
	defer attachResp.Close()

	stdout, stderr, timedOut := collect(executeCtx, attachResp.Reader, attachResp.Close)

	exitCode := timeoutExitCode
	if !timedOut {
		exitCode = 0
		inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err == nil {
			exitCode = inspectResp.ExitCode
		}
	}

	return &executor.Result{
		Success:  exitCode == 0,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

// collect demultiplexes an attached exec stream until it ends or ctx is
// done. On timeout the stream is closed and the copier drained before the
// note is appended, so the buffers have a single writer at a time.
func collect(ctx context.Context, r io.Reader, closeStream func()) (stdout, stderr string, timedOut bool) {
	var out, errOut bytes.Buffer

	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&out, &errOut, r)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		closeStream()
		<-done
		timedOut = true
		errOut.WriteString("\nExecution timed out.\n")
	}
	return out.String(), errOut.String(), timedOut
}

// Share is not available without the playground's gist service.
func (e *Executor) Share(context.Context, string) (string, error) {
	return "", executor.ErrShareUnsupported
}
