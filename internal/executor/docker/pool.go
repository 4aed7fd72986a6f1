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

// Pool keeps Config.PoolSize idle containers running `sleep infinity` so a
// Run only pays for an exec, not for a container start.
//
// Containers are single use: Acquire hands one out and Discard removes it.
// The refill loop notices the gap and starts a replacement.
type Pool struct {
	cli    *client.Client
	config Config
	logger *slog.Logger

	idle chan string
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:    cli,
		config: cfg,
		logger: logger,
		idle:   make(chan string, cfg.PoolSize),
		stop:   make(chan struct{}),
	}
}

// Start launches the refill loop. Calling it more than once is harmless.
func (p *Pool) Start() {
	p.once.Do(func() {
		p.logger.Info("starting sandbox pool", slog.Int("size", p.config.PoolSize))
		p.wg.Add(1)
		go p.refill()
	})
}

// Stop ends the refill loop and removes every idle container.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()

	for {
		select {
		case id := <-p.idle:
			p.Discard(id)
		default:
			p.logger.Info("sandbox pool stopped")
			return
		}
	}
}

// Acquire blocks until an idle container is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.idle:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Discard force-removes a container. Errors are logged, not returned: the
// caller has nothing useful to do with them.
func (p *Pool) Discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove sandbox container",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) refill() {
	defer p.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		for len(p.idle) < cap(p.idle) {
			id, err := p.create()
			if err != nil {
				p.logger.Error("failed to start sandbox container", slog.String("error", err.Error()))
				// Back off before the next tick tries again.
				select {
				case <-p.stop:
					return
				case <-time.After(time.Second):
				}
				break
			}

			select {
			case p.idle <- id:
			case <-p.stop:
				p.Discard(id)
				return
			}
		}
	}
}

func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := p.cli.ContainerCreate(ctx,
		&container.Config{
			Image: p.config.Image,
			Cmd:   []string{"sleep", "infinity"},
			User:  "nobody",
		},
		&container.HostConfig{
			NetworkMode:    "none",
			ReadonlyRootfs: true,
			Resources: container.Resources{
				Memory:   p.config.MemoryLimit,
				NanoCPUs: int64(p.config.CPULimit * 1e9),
			},
		},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.Discard(resp.ID)
		return "", fmt.Errorf("starting container: %w", err)
	}
	return resp.ID, nil
}
