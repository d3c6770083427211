// Package collector runs the fixed-interval poll loop: connect to the
// remote host, run the diagnostic command, parse the output, and publish
// the result. It owns all state transitions and the retry policy.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"gpuwatch/internal/config"
	"gpuwatch/internal/errors"
	"gpuwatch/internal/logger"
	"gpuwatch/internal/snapshot"
	"gpuwatch/internal/status"
	"gpuwatch/pkg/sshutil"
)

// Collector polls one remote target and publishes the latest state.
// The poll loop is a single logical worker; pollOnce never runs twice
// concurrently.
type Collector struct {
	cfg    *config.Config
	runner sshutil.Runner
	pub    *status.Publisher
	log    logger.Logger

	configErrors []string

	// Mutated only by the poll worker.
	state       State
	lastError   string
	lastData    *snapshot.Snapshot
	lastSuccess *time.Time

	inFlight atomic.Bool
}

// NewTarget builds the SSH target from config, filling gaps from
// ~/.ssh/config the way a plain ssh invocation would.
func NewTarget(cfg *config.Config) sshutil.Target {
	policy, _ := sshutil.ParseHostKeyPolicy(cfg.HostKeyPolicy)
	target := sshutil.Target{
		Host:           cfg.ServerHost,
		Port:           cfg.ServerPort,
		User:           cfg.ServerUser,
		Password:       cfg.ServerPassword,
		KeyPath:        cfg.ServerKeyPath,
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		HostKeys:       policy,
	}
	target.ApplySSHConfigDefaults()
	return target
}

// New creates a collector. A nil runner gets a real SSH client built from
// the config; tests pass a fake.
func New(cfg *config.Config, runner sshutil.Runner, pub *status.Publisher, log logger.Logger) *Collector {
	if log == nil {
		log = logger.Noop()
	}
	if runner == nil {
		runner = sshutil.NewClient(NewTarget(cfg), log)
	}
	return &Collector{
		cfg:          cfg,
		runner:       runner,
		pub:          pub,
		log:          log,
		configErrors: cfg.Problems(),
		state:        StateDisconnected,
	}
}

// Run executes the poll loop until ctx is canceled. Configuration problems
// stop the loop immediately: they are published as config_errors and there
// is nothing to retry until the operator fixes them.
func (c *Collector) Run(ctx context.Context) {
	defer c.runner.Close()

	if len(c.configErrors) > 0 {
		c.log.Error("not polling, configuration incomplete: %v", c.configErrors)
		c.publish()
		<-ctx.Done()
		return
	}

	c.log.Info("polling %s every %s", c.runner.Target(), c.cfg.PollInterval)

	// First poll immediately; ticks drive the rest.
	c.tick(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick starts one poll cycle unless the previous one is still in flight,
// in which case the tick is skipped, never queued. At most one remote
// operation is ever running.
func (c *Collector) tick(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.log.Debug("previous poll still in flight, skipping tick")
		return
	}
	go func() {
		defer c.inFlight.Store(false)
		c.pollOnce(ctx)
	}()
}

// pollOnce runs one full cycle: connect (implicitly, via the transport's
// lazy dial), run the diagnostic command, parse, publish.
func (c *Collector) pollOnce(ctx context.Context) {
	if c.state == StateDisconnected || c.state == StateRetrying {
		c.state = StateConnecting
		c.publish()
	}

	raw, _, err := c.runner.Run(ctx, snapshot.QueryCommand())
	if err != nil {
		c.recordFailure(err)
		c.publish()
		return
	}

	snap, warnings, err := snapshot.Parse(raw, time.Now())
	for _, w := range warnings {
		c.log.Warn("parse: %s", w)
	}
	if err != nil {
		c.recordFailure(err)
		c.publish()
		return
	}

	now := snap.Timestamp
	c.state = StateConnected
	c.lastError = ""
	c.lastData = snap
	c.lastSuccess = &now
	c.publish()
}

// recordFailure classifies an error and performs the state transition.
// The last good snapshot is kept in every case, so the dashboard shows
// stale data with the error rather than going blank.
func (c *Collector) recordFailure(err error) {
	c.lastError = err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrAuth, errors.ErrHostKey, errors.ErrConfig:
		// Not retryable within this cycle: the operator has to fix
		// credentials or trust. The next cycle still tries again, with the
		// error surfaced verbatim in the meantime.
		c.state = StateDisconnected
		c.runner.Reset()
		c.log.Error("poll failed (%s): %v", errors.CodeOf(err), err)
	default:
		// Timeouts, network drops, command failures, and malformed output
		// are transient; retry on the next tick at the normal interval.
		c.state = StateRetrying
		c.log.Warn("poll failed (%s), retrying: %v", errors.CodeOf(err), err)
	}
}

// publish pushes the current collector state to the publisher as one
// immutable value.
func (c *Collector) publish() {
	st := status.PublishedState{
		OK:                  c.state == StateConnected && c.lastData != nil,
		State:               c.state.String(),
		Error:               c.lastError,
		ConfigErrors:        c.configErrors,
		Data:                c.lastData,
		LastUpdate:          time.Now().UTC(),
		LastSuccess:         c.lastSuccess,
		PollIntervalSeconds: c.cfg.PollInterval.Seconds(),
	}
	if target := c.runner.Target(); target.Host != "" {
		port := target.Port
		if port == 0 {
			port = 22
		}
		st.Server = &status.ServerInfo{Host: target.Host, Port: port, User: target.User}
	}
	c.pub.Publish(st)
}
