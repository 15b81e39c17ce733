package host

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scratchpad/internal/sandbox"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T, limits Limits) (*Channel, *monitoring.Metrics) {
	t.Helper()
	cfg := sandbox.DefaultConfig()
	cfg.GracePeriod = 10 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond

	metrics := monitoring.NewMetrics()
	ch := NewChannel(Options{Config: cfg, Limits: limits, Metrics: metrics})
	t.Cleanup(ch.Close)
	return ch, metrics
}

func wait(t *testing.T, f *Future) (sandbox.RunResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func logs(result sandbox.RunResult) []string {
	out := make([]string, len(result.Transcript))
	for i, rec := range result.Transcript {
		out[i] = rec.Content
	}
	return out
}

func TestExecute(t *testing.T) {
	ch, metrics := newTestChannel(t, Limits{})

	f, err := ch.Execute(sandbox.RunRequest{Source: `console.log("hi")`, Timeout: time.Second})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.ID, "run_"))

	result, err := wait(t, f)
	require.NoError(t, err)
	assert.Equal(t, f.ID, result.RunID)
	assert.Equal(t, []string{"hi"}, logs(result))
	assert.Equal(t, sandbox.OutcomeCompleted, result.Outcome)

	assert.Eventually(t, func() bool { return !ch.Active() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("completed")))
}

func TestExecuteSupersedesLiveRun(t *testing.T) {
	ch, metrics := newTestChannel(t, Limits{})

	first, err := ch.Execute(sandbox.RunRequest{Source: `while (true) {}`, Timeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Eventually(t, ch.Active, time.Second, time.Millisecond)

	second, err := ch.Execute(sandbox.RunRequest{Source: `console.log("second")`, Timeout: time.Second})
	require.NoError(t, err)

	_, err = wait(t, first)
	assert.ErrorIs(t, err, ErrAbandoned)

	result, err := wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, logs(result))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RunsAbandoned) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTerminate(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{})

	// idle terminate is a no-op
	ch.Terminate()

	f, err := ch.Execute(sandbox.RunRequest{Source: `setInterval(() => console.log("tick"), 5)`, Timeout: 10 * time.Second})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	ch.Terminate()
	ch.Terminate()

	_, err = wait(t, f)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Eventually(t, func() bool { return !ch.Active() }, time.Second, 5*time.Millisecond)
}

func TestTerminateWhileRunFinishes(t *testing.T) {
	ch, metrics := newTestChannel(t, Limits{})
	ch.finishing = ch.Terminate

	f, err := ch.Execute(sandbox.RunRequest{Source: `console.log("done")`, Timeout: time.Second})
	require.NoError(t, err)

	_, err = wait(t, f)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.False(t, ch.Active())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("completed")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RunsAbandoned) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCompletedRunIgnoresLaterTerminate(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{})

	f, err := ch.Execute(sandbox.RunRequest{Source: `console.log("done")`, Timeout: time.Second})
	require.NoError(t, err)

	result, err := wait(t, f)
	require.NoError(t, err)
	ch.Terminate()

	again, err := wait(t, f)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, again.RunID)
	assert.Equal(t, []string{"done"}, logs(again))
}

func TestScheduleDebounces(t *testing.T) {
	ch, metrics := newTestChannel(t, Limits{})

	first, err := ch.Schedule(sandbox.RunRequest{Source: `console.log("first")`, Timeout: time.Second}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsScheduled))

	second, err := ch.Schedule(sandbox.RunRequest{Source: `console.log("second")`, Timeout: time.Second}, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = wait(t, first)
	assert.ErrorIs(t, err, ErrAbandoned)

	result, err := wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, logs(result))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RunsScheduled))
}

func TestExecuteCancelsSchedule(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{})

	scheduled, err := ch.Schedule(sandbox.RunRequest{Source: `console.log("late")`, Timeout: time.Second}, time.Hour)
	require.NoError(t, err)

	now, err := ch.Execute(sandbox.RunRequest{Source: `console.log("now")`, Timeout: time.Second})
	require.NoError(t, err)

	_, err = wait(t, scheduled)
	assert.ErrorIs(t, err, ErrAbandoned)

	result, err := wait(t, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"now"}, logs(result))
}

func TestScheduleWithoutDelayRunsNow(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{})

	f, err := ch.Schedule(sandbox.RunRequest{Source: `console.log(1)`, Timeout: time.Second}, 0)
	require.NoError(t, err)

	result, err := wait(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, logs(result))
}

func TestInvalidRequests(t *testing.T) {
	ch, metrics := newTestChannel(t, Limits{MaxSourceBytes: 16})

	tests := []struct {
		name string
		req  sandbox.RunRequest
	}{
		{name: "source too large", req: sandbox.RunRequest{Source: strings.Repeat("x", 17), Timeout: time.Second}},
		{name: "invalid utf8", req: sandbox.RunRequest{Source: "\xff", Timeout: time.Second}},
		{name: "negative timeout", req: sandbox.RunRequest{Source: "1", Timeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ch.Execute(tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			_, err = ch.Schedule(tt.req, time.Second)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RunsRejected.WithLabelValues("source")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RunsRejected.WithLabelValues("timeout")))
}

func TestTimeoutDefaultsAndClamp(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{DefaultTimeout: 80 * time.Millisecond, MaxTimeout: 120 * time.Millisecond})

	f, err := ch.Execute(sandbox.RunRequest{Source: `while (true) {}`})
	require.NoError(t, err)
	result, err := wait(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"Execution timed out after 80ms"}, logs(result))

	f, err = ch.Execute(sandbox.RunRequest{Source: `while (true) {}`, Timeout: time.Hour})
	require.NoError(t, err)
	result, err = wait(t, f)
	require.NoError(t, err)
	assert.Equal(t, sandbox.OutcomeTimeout, result.Outcome)
	assert.Equal(t, []string{"Execution timed out after 120ms"}, logs(result))
}

func TestClose(t *testing.T) {
	ch, _ := newTestChannel(t, Limits{})

	pendingRun, err := ch.Schedule(sandbox.RunRequest{Source: `1`, Timeout: time.Second}, time.Hour)
	require.NoError(t, err)

	ch.Close()
	ch.Close()

	_, err = wait(t, pendingRun)
	assert.ErrorIs(t, err, ErrAbandoned)

	_, err = ch.Execute(sandbox.RunRequest{Source: `1`, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ch.Schedule(sandbox.RunRequest{Source: `1`, Timeout: time.Second}, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFutureWaitHonoursContext(t *testing.T) {
	f := newFuture("run_x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.True(t, f.resolve(sandbox.RunResult{RunID: "run_x"}, nil))
	assert.False(t, f.resolve(sandbox.RunResult{}, ErrAbandoned))

	result, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run_x", result.RunID)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed")
	}
}
