package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func TestPoolRunKeepsOrderAndBoundsConcurrency(t *testing.T) {
	p := NewPool(2, quiet)
	var running, peak int32

	tasks := make([]ports.Task, 8)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return i * i, nil
		}
	}

	results, err := p.Run(context.Background(), tasks)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	p := NewPool(1, quiet)
	boom := stderrors.New("boom")

	_, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, boom
	}).Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		panic("bad input")
	}).Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")
}

func TestPoolHonoursCancellation(t *testing.T) {
	p := NewPool(1, quiet)
	release := make(chan struct{})
	started := make(chan struct{})
	blocker := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiting := p.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return "never", nil
	})
	cancel()

	_, err := waiting.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	_, err = blocker.Wait(context.Background())
	assert.NoError(t, err)
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	g := NewGuard(GuardConfig{Failures: 2, Cooldown: 50 * time.Millisecond}, quiet)

	fail := func(ctx context.Context) error { return apperrors.InternalError("estimator state corrupted") }
	ok := func(ctx context.Context) error { return nil }

	assert.Error(t, g.Execute(context.Background(), "analyze", fail))
	assert.NoError(t, g.Execute(context.Background(), "analyze", ok), "success resets the count")
	assert.Equal(t, int64(0), g.ConsecutiveFailures())
	assert.Error(t, g.Execute(context.Background(), "analyze", fail))
	assert.False(t, g.Open())
	assert.Error(t, g.Execute(context.Background(), "analyze", fail))
	assert.True(t, g.Open())

	err := g.Execute(context.Background(), "analyze", ok)
	assert.True(t, stderrors.Is(err, ErrGuardOpen))
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.GetCode(err))

	require.Eventually(t, func() bool {
		return g.Execute(context.Background(), "analyze", ok) == nil
	}, time.Second, 10*time.Millisecond)
	assert.False(t, g.Open())
}

func TestGuardIgnoresBadInput(t *testing.T) {
	g := NewGuard(GuardConfig{Failures: 1, Cooldown: time.Minute}, quiet)

	inputErrors := []error{
		apperrors.SourceError("orders.jsonl", fmt.Errorf("line 151: invalid JSON")),
		apperrors.InvalidInput("no file in request"),
		apperrors.WithCode(apperrors.CodeUnsupportedFormat, fmt.Errorf("report.pdf")),
		apperrors.ConfigInvalid("batch size must be positive"),
	}
	for _, inputErr := range inputErrors {
		err := g.Execute(context.Background(), "analyze", func(ctx context.Context) error { return inputErr })
		assert.Equal(t, apperrors.GetCode(inputErr), apperrors.GetCode(err))
		assert.False(t, g.Open(), apperrors.GetCode(inputErr))
	}
	assert.NoError(t, g.Execute(context.Background(), "analyze", func(ctx context.Context) error { return nil }))
}

func TestGuardRecoversPanics(t *testing.T) {
	g := NewGuard(DefaultGuardConfig(), quiet)
	err := g.Execute(context.Background(), "classify", func(ctx context.Context) error {
		var m map[string]int
		m["x"]++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternalError, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "classify panicked")
}

func TestGuardIgnoresCancellation(t *testing.T) {
	g := NewGuard(GuardConfig{Failures: 1, Cooldown: time.Minute}, quiet)
	err := g.Execute(context.Background(), "analyze", func(ctx context.Context) error {
		return apperrors.Cancelled(context.Canceled)
	})
	assert.Error(t, err)
	assert.False(t, g.Open())
}
