package backtester

import (
	"context"

	"github.com/atlas-desktop/crossover-trader/internal/workers"
	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// BatchResult pairs a request with its outcome
type BatchResult struct {
	Request types.BacktestRequest
	Result  *types.BacktestResult
	Err     error
}

// RunBatch runs independent backtests on the pool. Failures are reported
// per request and do not stop the batch.
func (e *Engine) RunBatch(ctx context.Context, pool *workers.Pool, reqs []types.BacktestRequest) []BatchResult {
	out := make([]BatchResult, len(reqs))
	tasks := make([]workers.Task, len(reqs))

	for i := range reqs {
		i := i
		out[i].Request = reqs[i]
		tasks[i] = workers.TaskFunc(func(ctx context.Context) error {
			res, err := e.Run(ctx, reqs[i])
			out[i].Result = res
			return err
		})
	}

	for i, err := range pool.RunAll(ctx, tasks) {
		out[i].Err = err
	}
	return out
}
