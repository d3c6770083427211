package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpuwatch/internal/config"
	"gpuwatch/internal/errors"
	"gpuwatch/internal/logger"
	"gpuwatch/internal/status"
	"gpuwatch/pkg/sshutil"
)

const validLine = "0, Tesla T4, 45, 12, 3, 1024, 16384, 20.1, 70.0, [N/A], 535.104.05\n"

// outcome is one scripted Run result.
type outcome struct {
	stdout string
	code   int
	err    error
}

// fakeRunner satisfies sshutil.Runner with scripted outcomes. The last
// outcome repeats once the script runs out.
type fakeRunner struct {
	mu       sync.Mutex
	outcomes []outcome
	calls    int
	resets   int
	closed   bool
	block    chan struct{} // when non-nil, Run blocks until closed
}

func (f *fakeRunner) Run(ctx context.Context, cmd string) (string, int, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	out := f.outcomes[i]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return out.stdout, out.code, out.err
}

func (f *fakeRunner) Target() sshutil.Target {
	return sshutil.Target{Host: "gpu-box-1", Port: 22, User: "ubuntu"}
}

func (f *fakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeRunner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ServerHost = "gpu-box-1"
	cfg.ServerUser = "ubuntu"
	cfg.ServerPassword = "pw"
	return cfg
}

func newTestCollector(t *testing.T, outcomes ...outcome) (*Collector, *fakeRunner, *status.Publisher) {
	t.Helper()
	runner := &fakeRunner{outcomes: outcomes}
	pub := status.NewPublisher()
	c := New(testConfig(), runner, pub, logger.Noop())
	return c, runner, pub
}

func TestPollSuccessPublishesSnapshot(t *testing.T) {
	c, _, pub := newTestCollector(t, outcome{stdout: validLine})

	c.pollOnce(context.Background())

	state := pub.Current()
	assert.True(t, state.OK)
	assert.Equal(t, "connected", state.State)
	assert.Empty(t, state.Error)
	require.NotNil(t, state.Data)
	require.Len(t, state.Data.GPUs, 1)
	assert.Equal(t, "Tesla T4", state.Data.GPUs[0].Name)
	assert.Equal(t, "535.104.05", state.Data.DriverVersion)
	require.NotNil(t, state.Server)
	assert.Equal(t, "gpu-box-1", state.Server.Host)
	assert.Equal(t, 22, state.Server.Port)
	assert.Equal(t, "ubuntu", state.Server.User)
	require.NotNil(t, state.LastSuccess)
}

// Three consecutive timeouts: state moves to retrying and stays there while
// the last good snapshot remains published.
func TestTimeoutsKeepStaleSnapshot(t *testing.T) {
	timeout := errors.New(errors.ErrTimeout, "Remote command exceeded 5s timeout", "")
	c, _, pub := newTestCollector(t,
		outcome{stdout: validLine},
		outcome{err: timeout},
		outcome{err: timeout},
		outcome{err: timeout},
	)

	c.pollOnce(context.Background())
	goodData := pub.Current().Data
	require.NotNil(t, goodData)

	for i := 0; i < 3; i++ {
		c.pollOnce(context.Background())
		state := pub.Current()
		assert.False(t, state.OK)
		assert.Equal(t, "retrying", state.State)
		assert.Contains(t, state.Error, "timeout")
		assert.Same(t, goodData, state.Data, "stale snapshot must be preserved")
	}
}

func TestRecoveryClearsError(t *testing.T) {
	c, _, pub := newTestCollector(t,
		outcome{err: errors.New(errors.ErrNetwork, "Can't reach gpu-box-1:22", "")},
		outcome{stdout: validLine},
	)

	c.pollOnce(context.Background())
	assert.Equal(t, "retrying", pub.Current().State)
	assert.NotEmpty(t, pub.Current().Error)

	c.pollOnce(context.Background())
	state := pub.Current()
	assert.True(t, state.OK)
	assert.Equal(t, "connected", state.State)
	assert.Empty(t, state.Error)
}

// Auth failures disconnect and surface the error verbatim, but the loop
// keeps trying: a later cycle with fixed credentials recovers.
func TestAuthErrorDisconnectsButKeepsRetrying(t *testing.T) {
	authErr := errors.New(errors.ErrAuth, "SSH auth to gpu-box-1:22 failed", "")
	c, runner, pub := newTestCollector(t,
		outcome{err: authErr},
		outcome{err: authErr},
		outcome{stdout: validLine},
	)

	c.pollOnce(context.Background())
	state := pub.Current()
	assert.Equal(t, "disconnected", state.State)
	assert.Contains(t, state.Error, "auth")
	assert.Equal(t, 1, runner.resets, "connection must be dropped so the next cycle redials")

	// The error stays visible on subsequent failing cycles.
	c.pollOnce(context.Background())
	assert.Contains(t, pub.Current().Error, "auth")

	// And the loop never gave up.
	c.pollOnce(context.Background())
	assert.True(t, pub.Current().OK)
}

func TestHostKeyErrorDisconnects(t *testing.T) {
	c, _, pub := newTestCollector(t,
		outcome{err: errors.New(errors.ErrHostKey, "Host key for gpu-box-1:22 changed", "")},
	)

	c.pollOnce(context.Background())
	state := pub.Current()
	assert.Equal(t, "disconnected", state.State)
	assert.Contains(t, state.Error, "Host key")
}

func TestMalformedOutputIsTransient(t *testing.T) {
	c, _, pub := newTestCollector(t,
		outcome{stdout: validLine},
		outcome{stdout: "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver"},
	)

	c.pollOnce(context.Background())
	goodData := pub.Current().Data

	c.pollOnce(context.Background())
	state := pub.Current()
	assert.False(t, state.OK)
	assert.Equal(t, "retrying", state.State)
	assert.Same(t, goodData, state.Data)
}

// Zero devices is a parse failure, not an empty success.
func TestZeroDevicesTreatedAsFailure(t *testing.T) {
	c, _, pub := newTestCollector(t, outcome{stdout: ""})

	c.pollOnce(context.Background())
	state := pub.Current()
	assert.False(t, state.OK)
	assert.Equal(t, "retrying", state.State)
	assert.NotEmpty(t, state.Error)
}

// Missing required config fields stop the loop entirely and surface as
// config_errors; the transport is never touched.
func TestConfigErrorsStopLoop(t *testing.T) {
	cfg := config.Default()
	cfg.ServerUser = "ubuntu" // host and credential missing

	runner := &fakeRunner{outcomes: []outcome{{stdout: validLine}}}
	pub := status.NewPublisher()
	c := New(cfg, runner, pub, logger.Noop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx)

	state := pub.Current()
	assert.False(t, state.OK)
	assert.Contains(t, state.ConfigErrors, "server_host is not set")
	assert.Contains(t, state.ConfigErrors, "no credential: set server_password or server_key_path")
	assert.Equal(t, 0, runner.callCount())
	assert.True(t, runner.closed)
}

// While a poll is blocked, further ticks are skipped, never queued.
func TestOverlapGuardSkipsTicks(t *testing.T) {
	runner := &fakeRunner{
		outcomes: []outcome{{stdout: validLine}},
		block:    make(chan struct{}),
	}
	pub := status.NewPublisher()
	c := New(testConfig(), runner, pub, logger.Noop())

	ctx := context.Background()
	c.tick(ctx)
	require.Eventually(t, func() bool { return runner.callCount() == 1 },
		time.Second, time.Millisecond, "first poll should start")

	// The poll is stuck inside Run; these ticks must all be dropped.
	c.tick(ctx)
	c.tick(ctx)
	c.tick(ctx)
	assert.Equal(t, 1, runner.callCount(), "exactly one remote operation in flight")

	// While connecting, readers already see the connecting state.
	assert.Equal(t, "connecting", pub.Current().State)

	close(runner.block)
	require.Eventually(t, func() bool { return pub.Current().OK },
		time.Second, time.Millisecond, "blocked poll should complete")

	// After completion the next tick runs again.
	runner.mu.Lock()
	runner.block = nil
	runner.mu.Unlock()
	c.tick(ctx)
	require.Eventually(t, func() bool { return runner.callCount() == 2 },
		time.Second, time.Millisecond)
}

// Run performs the first poll immediately without waiting for a tick.
func TestRunPollsImmediately(t *testing.T) {
	c, _, pub := newTestCollector(t, outcome{stdout: validLine})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.Current().OK },
		time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestNewTargetFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ServerPort = 2222
	cfg.HostKeyPolicy = config.HostKeyStrict

	target := NewTarget(cfg)
	assert.Equal(t, "gpu-box-1", target.Host)
	assert.Equal(t, 2222, target.Port)
	assert.Equal(t, "ubuntu", target.User)
	assert.Equal(t, sshutil.HostKeyStrict, target.HostKeys)
	assert.Equal(t, cfg.ConnectTimeout, target.ConnectTimeout)
	assert.Equal(t, cfg.CommandTimeout, target.CommandTimeout)
}
