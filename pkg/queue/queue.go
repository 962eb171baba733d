// Package queue implements the bounded, multi-producer/multi-consumer
// message queue with memory accounting, pressure levels, and adaptive
// backoff described in SPEC_FULL.md section 4.5.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sumatoshi-tech/codefang/pkg/alg/stats"
	"github.com/Sumatoshi-tech/codefang/pkg/message"
)

// ErrClosed is returned by Enqueue/TryEnqueue once the queue is closed.
var ErrClosed = errors.New("queue: closed")

// Pressure is a coarse category derived from the fraction of the byte
// ceiling currently in use, driving admission backoff.
type Pressure int

const (
	// Normal is usage below 70% of the ceiling.
	Normal Pressure = iota
	// Moderate is usage in [70%, 85%).
	Moderate
	// High is usage in [85%, 95%).
	High
	// Critical is usage at or above 95%; admissions pause entirely.
	Critical
)

const (
	moderateThreshold = 0.70
	highThreshold     = 0.85
	criticalThreshold = 0.95
)

// String renders a Pressure for logging.
func (p Pressure) String() string {
	switch p {
	case Normal:
		return "normal"
	case Moderate:
		return "moderate"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

func pressureFor(currentBytes, ceiling int64) Pressure {
	if ceiling <= 0 {
		return Critical
	}

	frac := float64(currentBytes) / float64(ceiling)

	switch {
	case frac >= criticalThreshold:
		return Critical
	case frac >= highThreshold:
		return High
	case frac >= moderateThreshold:
		return Moderate
	default:
		return Normal
	}
}

// AdmitResult is the outcome of TryEnqueue.
type AdmitResult struct {
	Accepted bool
	Pressure Pressure
}

// entry is a queued message paired with its admission-time bookkeeping.
type entry struct {
	msg            message.Message
	estimatedBytes int64
	enqueueTime    time.Time
}

// Config bounds a Queue's behavior.
type Config struct {
	// Ceiling is the maximum total estimated bytes in flight.
	Ceiling int64
	// BackoffBase is the first nonzero backoff delay.
	BackoffBase time.Duration
	// BackoffMultiplier is the exponential growth factor between retries.
	BackoffMultiplier int
	// BackoffCeiling caps the computed backoff delay.
	BackoffCeiling time.Duration
}

// DefaultConfig returns sensible defaults grounded on the worker-stall
// backoff sequence in the teacher's pkg/framework/watchdog.go: immediate,
// then 1s, then exponentially up to a ceiling.
func DefaultConfig() Config {
	return Config{
		Ceiling:           64 * 1024 * 1024,
		BackoffBase:       time.Second,
		BackoffMultiplier: 4,
		BackoffCeiling:    30 * time.Second,
	}
}

// BackoffDuration returns the backoff delay for the given 0-indexed retry
// attempt, bounded by cfg.BackoffCeiling.
func (c Config) BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	dur := c.BackoffBase
	for range attempt - 1 {
		dur *= time.Duration(c.BackoffMultiplier)

		if dur > c.BackoffCeiling {
			return c.BackoffCeiling
		}
	}

	if dur > c.BackoffCeiling {
		return c.BackoffCeiling
	}

	return dur
}

// Metrics holds the Prometheus instruments a Queue publishes.
type Metrics struct {
	Depth    prometheus.Gauge
	Bytes    prometheus.Gauge
	Pressure prometheus.Gauge
}

// Queue is a per-producer-FIFO bounded queue. Ordering across producers
// is not guaranteed; ordering within any single producer's calls to
// Enqueue/TryEnqueue is preserved.
type Queue struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	entries []entry
	bytes   int64
	closed  bool

	// lastPressure tracks the previous computed pressure to coalesce
	// QueueUpdate events to transitions only, per SPEC_FULL.md section 4.5.
	lastPressure Pressure
	lastEventAt  time.Time

	throughput *stats.EMA
	metrics    *Metrics

	onPressureChange func(depth int, bytes int64, pressure Pressure)
}

// New creates a Queue with the given configuration. onPressureChange, if
// non-nil, is invoked (outside the queue's lock) on pressure-level
// transitions, coalesced to at most one call per 50ms, mirroring the
// Notification Bus's QueueUpdate event.
func New(cfg Config, metrics *Metrics, onPressureChange func(depth int, bytes int64, pressure Pressure)) *Queue {
	q := &Queue{
		cfg:              cfg,
		throughput:       stats.NewEMA(0.2),
		metrics:          metrics,
		onPressureChange: onPressureChange,
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// TryEnqueue attempts a non-blocking admission. It never blocks.
func (q *Queue) TryEnqueue(msg message.Message) (AdmitResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return AdmitResult{}, ErrClosed
	}

	pressure := pressureFor(q.bytes, q.cfg.Ceiling)
	if pressure == Critical {
		return AdmitResult{Accepted: false, Pressure: pressure}, nil
	}

	q.admitLocked(msg)

	return AdmitResult{Accepted: true, Pressure: pressureFor(q.bytes, q.cfg.Ceiling)}, nil
}

// Enqueue blocks the calling producer under Moderate+ pressure, applying
// adaptive backoff, and pauses entirely at Critical until pressure falls
// below High. It returns ErrClosed if the queue is closed while waiting.
func (q *Queue) Enqueue(ctx context.Context, msg message.Message) error {
	attempt := 0
	paused := false

	for {
		q.mu.Lock()
		pressure := pressureFor(q.bytes, q.cfg.Ceiling)

		// Below Moderate, admit immediately and reset backoff.
		if pressure == Normal {
			if q.closed {
				q.mu.Unlock()

				return ErrClosed
			}

			q.admitLocked(msg)
			q.mu.Unlock()

			return nil
		}
		q.mu.Unlock()

		if pressure != Critical && !(paused && pressure == High) {
			// Moderate or High: back off, then admit.
			if err := q.sleepOrDone(ctx, q.cfg.BackoffDuration(attempt)); err != nil {
				return err
			}

			attempt++

			q.mu.Lock()

			if q.closed {
				q.mu.Unlock()

				return ErrClosed
			}

			q.admitLocked(msg)
			q.mu.Unlock()

			return nil
		}

		// Critical: this producer's admission stays paused until pressure
		// falls below High; retry without admitting.
		paused = true

		if err := q.sleepOrDone(ctx, q.cfg.BackoffDuration(attempt)); err != nil {
			return err
		}

		attempt++
	}
}

func (q *Queue) sleepOrDone(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// admitLocked inserts msg and updates byte accounting and pressure
// bookkeeping. Caller must hold q.mu.
func (q *Queue) admitLocked(msg message.Message) {
	e := entry{msg: msg, estimatedBytes: msg.EstimatedBytes(), enqueueTime: time.Now()}
	q.entries = append(q.entries, e)
	q.bytes += e.estimatedBytes

	if q.metrics != nil {
		q.metrics.Depth.Set(float64(len(q.entries)))
		q.metrics.Bytes.Set(float64(q.bytes))
	}

	q.cond.Signal()
	q.maybePublishPressureLocked()
}

func (q *Queue) maybePublishPressureLocked() {
	pressure := pressureFor(q.bytes, q.cfg.Ceiling)
	if pressure == q.lastPressure {
		return
	}

	if time.Since(q.lastEventAt) < 50*time.Millisecond {
		return
	}

	q.lastPressure = pressure
	q.lastEventAt = time.Now()

	if q.metrics != nil {
		q.metrics.Pressure.Set(float64(pressure))
	}

	if q.onPressureChange != nil {
		depth, bytes := len(q.entries), q.bytes
		go q.onPressureChange(depth, bytes, pressure)
	}
}

// Dequeue blocks until a message is available or the queue is closed and
// drained, in which case it returns ok=false.
func (q *Queue) Dequeue() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.entries) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.entries) == 0 {
		return message.Message{}, false
	}

	e := q.entries[0]
	q.entries = q.entries[1:]
	q.bytes -= e.estimatedBytes

	now := time.Now()
	q.throughput.Update(1.0 / now.Sub(e.enqueueTime).Seconds())

	if q.metrics != nil {
		q.metrics.Depth.Set(float64(len(q.entries)))
		q.metrics.Bytes.Set(float64(q.bytes))
	}

	return e.msg, true
}

// Close stops accepting new enqueues. Dequeue continues to drain
// remaining entries, then returns ok=false once empty.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// InFlightBytes reports the current estimated bytes in flight, for tests
// and the "Queue safety" testable property.
func (q *Queue) InFlightBytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.bytes
}

// Throughput returns the EMA-smoothed messages/second dequeue rate, used
// to validate the "Backoff convergence" testable property.
func (q *Queue) Throughput() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.throughput.Value()
}
