// Package controller owns a device connection on behalf of many callers.
// Jobs are queued to a single worker goroutine that runs them one at a
// time on a yeelight.Session, reconnecting and resending when the session
// fails.
package controller

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
	"gopkg.in/tomb.v2"

	"github.com/alparslanahmed/yeelight"
)

var logger = loggo.GetLogger("yeelight.controller")

// ErrControllerStopped is returned for jobs that could not finish because
// the controller was killed.
const ErrControllerStopped = errors.ConstError("controller stopped")

// Result describes a finished job.
type Result struct {
	// JobID is the ULID assigned when the job was queued.
	JobID string

	// SessionID and RequestID identify the round trip that produced Reply.
	SessionID string
	RequestID uint64

	Reply *yeelight.Reply

	// Attempts is the number of times the command was tried.
	Attempts int
}

type job struct {
	id     string
	ctx    context.Context
	cmd    yeelight.Command
	result chan outcome
}

type outcome struct {
	result Result
	err    error
}

// Controller serialises commands to one device.
//
//	ctrl, err := controller.New(controller.DefaultConfig("192.168.1.7:55443"))
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Wait()
//	defer ctrl.Kill()
//
//	res, err := ctrl.Execute(ctx, yeelight.Toggle(yeelight.Main))
type Controller struct {
	tomb   tomb.Tomb
	config Config
	jobs   chan *job

	// session is only touched by the worker goroutine.
	session *yeelight.Session
}

// New validates config and starts the worker.
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	config = config.withDefaults()
	c := &Controller{
		config: config,
		jobs:   make(chan *job, config.QueueSize),
	}
	c.tomb.Go(c.loop)
	return c, nil
}

// Address returns the device address.
func (c *Controller) Address() string {
	return c.config.Address
}

// Metrics returns the collector the controller reports to.
func (c *Controller) Metrics() *Collector {
	return c.config.Metrics
}

// Kill asks the worker to stop. Queued jobs fail with ErrControllerStopped.
func (c *Controller) Kill() {
	c.tomb.Kill(nil)
}

// Wait blocks until the worker has stopped and its session is closed.
func (c *Controller) Wait() error {
	return c.tomb.Wait()
}

// Send builds a command from method and params and executes it.
func (c *Controller) Send(ctx context.Context, method string, params ...any) (Result, error) {
	cmd, err := yeelight.NewCommand(yeelight.Method(method), params...)
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	return c.Execute(ctx, cmd)
}

// Execute queues cmd and waits for its outcome. Connection failures are
// retried on a fresh session; device rejections are returned as is.
func (c *Controller) Execute(ctx context.Context, cmd yeelight.Command) (Result, error) {
	j := &job{
		id:     newJobID(),
		ctx:    ctx,
		cmd:    cmd,
		result: make(chan outcome, 1),
	}

	select {
	case c.jobs <- j:
		c.config.Metrics.queued.Inc()
	case <-c.tomb.Dying():
		return Result{JobID: j.id}, ErrControllerStopped
	case <-ctx.Done():
		return Result{JobID: j.id}, errors.Trace(ctx.Err())
	}

	select {
	case out := <-j.result:
		return out.result, out.err
	case <-c.tomb.Dying():
		return Result{JobID: j.id}, ErrControllerStopped
	case <-ctx.Done():
		// The worker sees the same ctx and abandons the job.
		return Result{JobID: j.id}, errors.Trace(ctx.Err())
	}
}

func (c *Controller) loop() error {
	defer c.dropSession()
	dying := c.tomb.Context(context.Background())
	for {
		select {
		case <-c.tomb.Dying():
			return tomb.ErrDying
		case j := <-c.jobs:
			c.config.Metrics.queued.Dec()
			res, err := c.run(dying, j)
			j.result <- outcome{result: res, err: err}
		}
	}
}

// run executes one job with retries. The round trip is aborted when either
// the caller's context or dying is cancelled.
func (c *Controller) run(dying context.Context, j *job) (Result, error) {
	res := Result{JobID: j.id}
	method := string(j.cmd.Method())
	if err := j.ctx.Err(); err != nil {
		c.observe(method, 0, err)
		return res, errors.Trace(err)
	}

	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(dying, cancel)
	defer stop()

	start := c.config.Clock.Now()
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			res.Attempts++
			session, err := c.ensureSession(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			res.SessionID = session.ID()
			res.RequestID = session.NextID()
			reply, err := session.Execute(ctx, j.cmd)
			if err != nil {
				if yeelight.IsFatal(err) {
					c.dropSession()
				}
				return err
			}
			res.Reply = reply
			return nil
		},
		IsFatalError: func(err error) bool {
			return !retryable(err) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			c.config.Metrics.failedAttempts.Inc()
			logger.Debugf("job %s: attempt %d of %s failed: %v", j.id, attempt, method, err)
		},
		Attempts:    c.config.RetryAttempts,
		Delay:       c.config.RetryDelay,
		MaxDelay:    c.config.MaxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.config.Clock,
		Stop:        c.tomb.Dying(),
	})

	switch {
	case err == nil:
	case !c.alive():
		err = ErrControllerStopped
	case j.ctx.Err() != nil:
		err = errors.Annotatef(j.ctx.Err(), "job %s", j.id)
	case retry.IsAttemptsExceeded(err):
		err = errors.Annotatef(retry.LastError(err), "job %s failed after %d attempts", j.id, res.Attempts)
	default:
		err = errors.Annotatef(err, "job %s", j.id)
	}
	c.observe(method, c.config.Clock.Now().Sub(start), err)
	return res, err
}

// ensureSession returns the live session, dialling one if needed.
func (c *Controller) ensureSession(ctx context.Context) (*yeelight.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	session, err := c.config.Dial(ctx, c.config.Address, c.config.SessionOptions...)
	if err != nil {
		c.config.Metrics.dials.WithLabelValues("failed").Inc()
		return nil, errors.Trace(err)
	}
	c.config.Metrics.dials.WithLabelValues("ok").Inc()
	logger.Debugf("session %s opened to %s", session.ID(), c.config.Address)
	c.session = session
	return session, nil
}

func (c *Controller) dropSession() {
	if c.session == nil {
		return
	}
	logger.Debugf("session %s dropped", c.session.ID())
	_ = c.session.Close()
	c.session = nil
}

func (c *Controller) alive() bool {
	select {
	case <-c.tomb.Dying():
		return false
	default:
		return true
	}
}

func (c *Controller) observe(method string, elapsed time.Duration, err error) {
	c.config.Metrics.commands.WithLabelValues(method, outcomeLabel(err)).Inc()
	if elapsed > 0 {
		c.config.Metrics.roundTrip.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// retryable reports whether a failed attempt may succeed on a new session.
func retryable(err error) bool {
	return errors.Is(err, yeelight.ErrConnect) || yeelight.IsFatal(err)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, yeelight.ErrRequestRejected):
		return "rejected"
	case errors.Is(err, ErrControllerStopped):
		return "stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
