package controller

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/alparslanahmed/yeelight"
)

const (
	// DefaultQueueSize is the number of jobs that may wait for the worker.
	DefaultQueueSize = 16

	// DefaultRetryAttempts is the number of times a job is tried.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the pause before the first retry.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the doubling backoff.
	DefaultMaxRetryDelay = 5 * time.Second
)

// DialFunc opens a session to address.
type DialFunc func(ctx context.Context, address string, options ...yeelight.SessionOption) (*yeelight.Session, error)

// Config holds the dependencies and tuning of a Controller.
type Config struct {
	// Address is the device host:port.
	Address string

	// Dial opens sessions. Defaults to yeelight.Connect.
	Dial DialFunc

	// SessionOptions are passed to every Dial.
	SessionOptions []yeelight.SessionOption

	// QueueSize bounds the job queue. Zero means DefaultQueueSize.
	QueueSize int

	// RetryAttempts is the total number of tries per job, at least 1.
	RetryAttempts int

	// RetryDelay is the pause before the first retry. It doubles on each
	// further retry up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// Clock drives the retry delays. Defaults to clock.WallClock.
	Clock clock.Clock

	// Metrics receives the controller's measurements. When nil a private
	// collector is created; register Controller.Metrics() to export it.
	Metrics *Collector
}

// DefaultConfig returns a Config for address with the default tuning.
func DefaultConfig(address string) Config {
	return Config{
		Address:       address,
		QueueSize:     DefaultQueueSize,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.NotValidf("empty Address")
	}
	if c.QueueSize < 0 {
		return errors.NotValidf("QueueSize %d", c.QueueSize)
	}
	if c.RetryAttempts < 1 {
		return errors.NotValidf("RetryAttempts %d", c.RetryAttempts)
	}
	if c.RetryDelay <= 0 {
		return errors.NotValidf("RetryDelay %v", c.RetryDelay)
	}
	if c.MaxRetryDelay < 0 {
		return errors.NotValidf("MaxRetryDelay %v", c.MaxRetryDelay)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Dial == nil {
		c.Dial = yeelight.Connect
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Metrics == nil {
		c.Metrics = NewMetricsCollector()
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}
