// Package docker implements executor.Runner with throwaway Docker containers.
//
// Every run gets its own container taken from a warm pool, and the container
// is removed afterwards, so nothing one snippet writes is visible to the next.
// Containers have no network, a read-only root filesystem and run as nobody.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/codegen-playground/internal/executor"
)

var _ executor.Runner = (*Sandbox)(nil)

// Sandbox runs programs in pooled containers.
type Sandbox struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New connects to the daemon described by the DOCKER_* environment variables,
// pulls the image and starts warming the pool. It fails fast when no daemon
// answers, so callers can start without the sandbox.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("docker: invalid config: %w", err)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: daemon not reachable: %w", err)
	}

	if err := pull(ctx, cli, cfg.Image, logger); err != nil {
		cli.Close()
		return nil, err
	}

	s := &Sandbox{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	s.pool.Start()
	return s, nil
}

func pull(ctx context.Context, cli *client.Client, ref string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	logger.Info("ensuring sandbox image is available", slog.String("image", ref))
	reader, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pulling %s: %w", ref, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("docker: pulling %s: %w", ref, err)
	}
	logger.Info("sandbox image ready", slog.String("image", ref))
	return nil
}

// Close stops the pool, removes idle containers and closes the client.
func (s *Sandbox) Close() error {
	s.pool.Stop()
	return s.cli.Close()
}

// Run executes p in a fresh container and returns what it printed.
// Programs exceeding Config.Timeout are reported with TimedOut set and
// executor.TimeoutExitCode; that is not an error.
func (s *Sandbox) Run(ctx context.Context, p executor.Program) (*executor.Result, error) {
	cmd, err := executor.Command(p)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	id, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: acquiring container: %w", err)
	}
	defer s.pool.Discard(id)

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	created, err := s.cli.ContainerExecCreate(runCtx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: creating exec: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(runCtx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: attaching exec: %w", err)
	}
	defer attach.Close()

	stdout := executor.NewLimitedBuffer(s.config.OutputLimit)
	stderr := executor.NewLimitedBuffer(s.config.OutputLimit)
	done := make(chan struct{})
	go func() {
		// Exec output is multiplexed on one stream.
		_, _ = stdcopy.StdCopy(stdout, stderr, attach.Reader)
		close(done)
	}()

	res := &executor.Result{}
	select {
	case <-done:
		inspect, err := s.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return nil, fmt.Errorf("docker: inspecting exec: %w", err)
		}
		res.ExitCode = inspect.ExitCode
	case <-runCtx.Done():
		// The copier owns both buffers until it returns, and it only returns
		// once the stream is closed.
		attach.Close()
		<-done
		res.ExitCode = executor.TimeoutExitCode
		res.TimedOut = true
		stderr.WriteString("\nExecution timed out.\n")
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Duration = time.Since(start)

	s.logger.Debug("sandbox run finished",
		slog.String("container", id[:min(12, len(id))]),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}
