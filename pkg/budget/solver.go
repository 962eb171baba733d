package budget

import (
	"errors"
	"runtime"
	"time"

	"github.com/Sumatoshi-tech/codefang/pkg/engine"
)

// Allocation proportions for budget distribution.
const (
	// CacheAllocationPercent is the percentage of available budget for the
	// Bounded Message Queue's byte ceiling.
	CacheAllocationPercent = 60

	// WorkerAllocationPercent is the percentage of available budget for workers.
	WorkerAllocationPercent = 30

	// BufferAllocationPercent is the percentage of available budget for buffers.
	BufferAllocationPercent = 10

	// SlackPercent is reserved for runtime overhead.
	SlackPercent = 5

	// percentDivisor is used for percentage calculations.
	percentDivisor = 100
)

// Solver constraints.
const (
	// MinimumBudget is the smallest budget the solver will accept.
	// Must exceed BaseOverhead (250 MiB) plus room for at least 1 worker.
	MinimumBudget = 512 * MiB

	// MinWorkers is the minimum number of workers.
	MinWorkers = 1

	// MinBufferSize is the minimum buffer size.
	MinBufferSize = 2

	// MinQueueCeiling is the minimum Bounded Message Queue byte ceiling.
	MinQueueCeiling = 1 * MiB

	// OptimalWorkerRatio is the percentage of CPU cores to use for workers.
	// Testing shows ~60% provides optimal performance due to contention overhead.
	OptimalWorkerRatio = 60
)

// Solver errors.
var (
	// ErrBudgetTooSmall indicates the budget is below the minimum required.
	ErrBudgetTooSmall = errors.New("memory budget is too small")
)

// SolveForBudget calculates an optimal engine.Config for the given memory
// budget. The solver distributes available memory across workers, the
// Bounded Message Queue's byte ceiling, and internal buffers while
// ensuring the total estimated usage stays within budget.
func SolveForBudget(budget int64) (engine.Config, error) {
	if budget < MinimumBudget {
		return engine.Config{}, ErrBudgetTooSmall
	}

	// Reserve slack for runtime overhead.
	usableBudget := budget * (percentDivisor - SlackPercent) / percentDivisor

	// Subtract base overhead.
	available := usableBudget - BaseOverhead
	if available <= 0 {
		return engine.Config{}, ErrBudgetTooSmall
	}

	// Allocate proportionally.
	queueAlloc := available * CacheAllocationPercent / percentDivisor
	workerAlloc := available * WorkerAllocationPercent / percentDivisor
	bufferAlloc := available * BufferAllocationPercent / percentDivisor

	cfg := deriveKnobs(queueAlloc, workerAlloc, bufferAlloc)

	return cfg, nil
}

// deriveKnobs calculates individual configuration knobs from allocation budgets.
func deriveKnobs(queueAlloc, workerAlloc, bufferAlloc int64) engine.Config {
	// Workers: maximize within allocation, minimum 1, cap at optimal ratio of CPU cores.
	// Include native overhead (C/mmap) per worker in the cost calculation.
	maxWorkers := max(MinWorkers, runtime.NumCPU()*OptimalWorkerRatio/percentDivisor)
	workerCost := int64(RepoHandleSize + WorkerNativeOverhead)
	workers := max(MinWorkers, min(maxWorkers, int(workerAlloc/workerCost)))

	// Queue ceiling: the whole queue allocation, capped to avoid dominating
	// the budget.
	queueCeiling := max(int64(MinQueueCeiling), queueAlloc)
	queueCeiling = min(queueCeiling, MaxQueueCeiling)

	// Buffer size: based on the buffer allocation.
	bufferSize := max(MinBufferSize, int(bufferAlloc/AvgCommitDataSize))

	return engine.Config{
		Workers:          workers,
		BufferSize:       bufferSize,
		QueueCeiling:     queueCeiling,
		ShutdownDeadline: 30 * time.Second,
	}
}
