package ack

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxBatchSize         = 1000
	DefaultMaxBatchDelay        = 100 * time.Millisecond
	DefaultMaxRetryAttempts     = 10
	DefaultRetryBaseDelay       = time.Second
	DefaultRetryBackoffFactor   = 2.0
	DefaultRetryBackoffCap      = 60 * time.Second
	DefaultDispatchTimeout      = 10 * time.Second
	DefaultShutdownDrainTimeout = 10 * time.Second
	DefaultWorkers              = 4

	retryJitter = 0.2
)

type Config struct {
	MaxBatchSize         int           `yaml:"max_batch_size"`
	MaxBatchDelay        time.Duration `yaml:"max_batch_delay"`
	MaxRetryAttempts     int           `yaml:"max_retry_attempts"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
	RetryBackoffFactor   float64       `yaml:"retry_backoff_factor"`
	RetryBackoffCap      time.Duration `yaml:"retry_backoff_cap"`
	DispatchTimeout      time.Duration `yaml:"dispatch_timeout"`
	ShutdownDrainTimeout time.Duration `yaml:"shutdown_drain_timeout"`
	TickInterval         time.Duration `yaml:"tick_interval"`
	Workers              int           `yaml:"workers"`
}

func (c *Config) SetDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxBatchDelay == 0 {
		c.MaxBatchDelay = DefaultMaxBatchDelay
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryBackoffFactor == 0 {
		c.RetryBackoffFactor = DefaultRetryBackoffFactor
	}
	if c.RetryBackoffCap == 0 {
		c.RetryBackoffCap = DefaultRetryBackoffCap
	}
	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = DefaultDispatchTimeout
	}
	if c.ShutdownDrainTimeout == 0 {
		c.ShutdownDrainTimeout = DefaultShutdownDrainTimeout
	}
	if c.TickInterval == 0 {
		c.TickInterval = max(c.MaxBatchDelay/2, time.Millisecond)
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.MaxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize))
	}
	if c.MaxBatchDelay <= 0 {
		errs = append(errs, fmt.Errorf("max_batch_delay must be positive, got %s", c.MaxBatchDelay))
	}
	if c.MaxRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_retry_attempts must be positive, got %d", c.MaxRetryAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry_base_delay must be positive, got %s", c.RetryBaseDelay))
	}
	if c.RetryBackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("retry_backoff_factor must be at least 1, got %g", c.RetryBackoffFactor))
	}
	if c.RetryBackoffCap < c.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("retry_backoff_cap %s is below retry_base_delay %s", c.RetryBackoffCap, c.RetryBaseDelay))
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch_timeout must be positive, got %s", c.DispatchTimeout))
	}
	if c.ShutdownDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_drain_timeout must be positive, got %s", c.ShutdownDrainTimeout))
	}
	if c.TickInterval <= 0 || c.TickInterval > c.MaxBatchDelay {
		errs = append(errs, fmt.Errorf("tick_interval must be in (0, max_batch_delay], got %s", c.TickInterval))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}

	return errors.Join(errs...)
}

// retryDelay returns the backoff before the given retry attempt (1-based).
func (c *Config) retryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.RetryBaseDelay,
		RandomizationFactor: retryJitter,
		Multiplier:          c.RetryBackoffFactor,
		MaxInterval:         c.RetryBackoffCap,
	}
	b.Reset()

	var d time.Duration
	for range max(attempt, 1) {
		d = b.NextBackOff()
	}
	return min(d, c.RetryBackoffCap)
}
