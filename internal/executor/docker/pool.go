package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps a few idle containers of one image running, so a snippet does
// not pay for container start-up.
type Pool struct {
	cli        *client.Client
	image      string
	config     Config
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
}

// NewPool creates a pool for img. Nothing is started until Start.
func NewPool(cli *client.Client, img string, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:        cli,
		image:      img,
		config:     cfg,
		logger:     logger.With(slog.String("image", img)),
		containers: make(chan string, max(cfg.PoolSize, 1)),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting docker container pool", slog.Int("poolSize", cap(p.containers)))
		p.wg.Add(1)
		go p.fill()
	})
}

// Stop shuts down the filler and removes every idle container.
func (p *Pool) Stop() {
	p.logger.Info("shutting down docker container pool")
	close(p.done)
	p.wg.Wait()

	for {
		select {
		case id := <-p.containers:
			p.removeContainer(id)
		default:
			return
		}
	}
}

// Acquire hands out an idle container, blocking until one is ready or ctx
// ends. The caller owns the container and must remove it.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pool) fill() {
	defer p.wg.Done()

	for {
		id, err := p.createContainer()
		if err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			select {
			case <-time.After(time.Second):
				continue
			case <-p.done:
				return
			}
		}

		// Blocks while the pool is full.
		select {
		case p.containers <- id:
		case <-p.done:
			p.removeContainer(id)
			return
		}
	}
}

// createContainer starts an idle container with no network, a read-only
// root and an executable scratch /tmp for rustc's output.
func (p *Pool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,exec,size=256m",
		},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("starting container: %w", err)
	}

	return resp.ID, nil
}

func (p *Pool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
