package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySubmitRunsOperationAndReturnsValue(t *testing.T) {
	e := New()
	defer func() { e.Shutdown(); e.Wait() }()

	resultCh, err := e.TrySubmit(func(ctx context.Context) (any, error) {
		return 42, nil
	}, time.Time{})
	require.NoError(t, err)

	res := <-resultCh
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Value)
}

func TestTrySubmitFailsFastWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	e := WithConfig(Config{IOThreads: 1, QueueCapacity: 1})
	defer func() { close(block); e.Shutdown(); e.Wait() }()

	// occupy the single worker
	_, err := e.TrySubmit(func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, time.Time{})
	require.NoError(t, err)

	// fill the one-deep queue
	_, err = e.TrySubmit(func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	require.NoError(t, err)

	_, err = e.TrySubmit(func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	var qerr *QueueFullError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 1, qerr.Capacity)
}

func TestTrySubmitAfterShutdownReturnsErrShutdown(t *testing.T) {
	e := New()
	e.Shutdown()
	e.Wait()

	_, err := e.TrySubmit(func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestJobPastDeadlineFailsWithoutRunning(t *testing.T) {
	e := New()
	defer func() { e.Shutdown(); e.Wait() }()

	var ran bool
	resultCh, err := e.TrySubmit(func(ctx context.Context) (any, error) {
		ran = true
		return nil, nil
	}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	res := <-resultCh
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestSubmitBlockWaitsForCapacity(t *testing.T) {
	release := make(chan struct{})
	e := WithConfig(Config{IOThreads: 1, QueueCapacity: 1}.WithSaturationPolicy(Block, 0))
	defer func() { e.Shutdown(); e.Wait() }()

	// occupies the single worker, leaving the one-deep queue empty
	_, err := e.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, time.Time{})
	require.NoError(t, err)

	// fills the one-deep queue
	_, err = e.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	require.NoError(t, err)

	submitted := make(chan struct{})
	go func() {
		_, err := e.Submit(context.Background(), func(ctx context.Context) (any, error) {
			return "third", nil
		}, time.Time{})
		assert.NoError(t, err)
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should have blocked while the worker and queue were both occupied")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit never unblocked after capacity freed")
	}
}

func TestSubmitWaitThenErrorTimesOut(t *testing.T) {
	block := make(chan struct{})
	e := WithConfig(Config{IOThreads: 1, QueueCapacity: 1}.WithSaturationPolicy(WaitThenError, 20*time.Millisecond))
	defer func() { close(block); e.Shutdown(); e.Wait() }()

	_, err := e.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, time.Time{})
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	require.NoError(t, err) // fills the one-deep queue

	start := time.Now()
	_, err = e.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	elapsed := time.Since(start)

	var qerr *QueueFullError
	require.ErrorAs(t, err, &qerr)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestSubmitAppliesDefaultTimeout(t *testing.T) {
	e := WithConfig(DefaultConfig().WithDefaultTimeout(10 * time.Millisecond))
	defer func() { e.Shutdown(); e.Wait() }()

	resultCh, err := e.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, time.Time{})
	require.NoError(t, err)

	res := <-resultCh
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

func TestStatsTrackSubmissionsAndCompletions(t *testing.T) {
	e := New()
	defer func() { e.Shutdown(); e.Wait() }()

	resultCh, err := e.TrySubmit(func(ctx context.Context) (any, error) { return nil, nil }, time.Time{})
	require.NoError(t, err)
	<-resultCh

	assert.Equal(t, uint64(1), e.Stats().JobsSubmitted.Load())
	assert.Equal(t, uint64(1), e.Stats().JobsCompleted.Load())
}
