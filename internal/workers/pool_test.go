package workers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/workers"
)

func newPool(t *testing.T, n int) *workers.Pool {
	t.Helper()
	cfg := workers.DefaultPoolConfig("test")
	cfg.NumWorkers = n
	cfg.QueueSize = 16
	p := workers.NewPool(zap.NewNop(), cfg)
	p.Start()
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestRunAllCollectsErrorsByIndex(t *testing.T) {
	t.Parallel()

	p := newPool(t, 4)
	boom := errors.New("boom")

	var ran atomic.Int64
	tasks := make([]workers.Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = workers.TaskFunc(func(ctx context.Context) error {
			ran.Add(1)
			if i%3 == 0 {
				return boom
			}
			return nil
		})
	}

	errs := p.RunAll(context.Background(), tasks)
	require.Len(t, errs, 10)
	assert.Equal(t, int64(10), ran.Load())
	for i, err := range errs {
		if i%3 == 0 {
			assert.ErrorIs(t, err, boom)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestRunAllRecoversPanics(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	errs := p.RunAll(context.Background(), []workers.Task{
		workers.TaskFunc(func(context.Context) error { panic("bad symbol") }),
	})

	var pe *workers.PanicError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, "bad symbol", pe.Recovered)
	assert.Equal(t, int64(1), p.Stats().PanicRecovered)
}

func TestRunAllOnStoppedPoolRunsInline(t *testing.T) {
	t.Parallel()

	p := workers.NewPool(zap.NewNop(), workers.DefaultPoolConfig("stopped"))
	var ran bool
	errs := p.RunAll(context.Background(), []workers.Task{
		workers.TaskFunc(func(context.Context) error { ran = true; return nil }),
	})
	assert.True(t, ran)
	assert.NoError(t, errs[0])
}

func TestSubmitAfterStop(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.ErrorIs(t, p.SubmitFunc(func(context.Context) error { return nil }), workers.ErrPoolStopped)
}
