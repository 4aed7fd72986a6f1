package docker

import (
	"errors"
	"time"
)

// Config holds the sandbox container settings.
type Config struct {
	// Image must provide `python` and `sh` on its PATH.
	Image string
	// MemoryLimit is in bytes.
	MemoryLimit int64
	// CPULimit is a fraction of one CPU.
	CPULimit float64
	// Timeout bounds a single Run, not the container lifetime.
	Timeout time.Duration
	// PoolSize is the number of idle containers kept warm.
	PoolSize int
	// OutputLimit caps the bytes kept from each of stdout and stderr.
	OutputLimit int
}

// DefaultConfig is a small python sandbox: 128 MB, half a CPU, no network.
func DefaultConfig() Config {
	return Config{
		Image:       "python:3.12-alpine",
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     5 * time.Second,
		PoolSize:    2,
		OutputLimit: 64 * 1024,
	}
}

// Validate reports settings the daemon would reject or that would make every
// run fail.
func (c Config) Validate() error {
	var errs []error
	if c.Image == "" {
		errs = append(errs, errors.New("image is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.PoolSize < 1 {
		errs = append(errs, errors.New("pool size must be at least 1"))
	}
	if c.OutputLimit < 1 {
		errs = append(errs, errors.New("output limit must be positive"))
	}
	if c.MemoryLimit < 0 || c.CPULimit < 0 {
		errs = append(errs, errors.New("resource limits must not be negative"))
	}
	return errors.Join(errs...)
}
