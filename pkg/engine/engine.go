package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codefang/pkg/checkout"
	"github.com/Sumatoshi-tech/codefang/pkg/gitlib"
	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/notify"
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
	"github.com/Sumatoshi-tech/codefang/pkg/queue"
	"github.com/Sumatoshi-tech/codefang/pkg/registry"
	"github.com/Sumatoshi-tech/codefang/pkg/scanner"
)

// tracerName is the default OTel tracer name for the engine package.
const tracerName = "codefang"

// ErrShutdownTimedOut is reported as a non-recoverable ScanWarning when
// plugins remain active past the configured shutdown deadline; Run
// signals it through Result.TimedOut rather than a returned error.
var ErrShutdownTimedOut = errors.New("engine: shutdown deadline exceeded")

// Result aggregates one Pipeline Engine run's outcome.
type Result struct {
	CommitsVisited int
	FilesChanged   int
	Warnings       int
	Duration       time.Duration

	// Reports holds one plugin.Report per TerminalAggregator plugin that
	// finalised successfully, keyed by plugin ID.
	Reports map[string]plugin.Report

	// PluginErrors holds any error a plugin raised during initialisation,
	// dispatch, or finalisation, keyed by plugin ID.
	PluginErrors map[string]error

	// TimedOut is true when graceful shutdown hit ShutdownDeadline before
	// every plugin reached Idle.
	TimedOut bool
}

// Engine runs one Pipeline Engine pass: it derives the Runtime scan
// profile from the registered plugins, wires the Queue, Notification
// Bus, and (if required) Checkout Manager, drives the Event-Driven
// Scanner, and dispatches its message stream to plugins.
type Engine struct {
	cfg    Config
	caps   []string
	tracer trace.Tracer
}

// New creates an Engine. caps lists the capability identifiers the
// runtime provides to plugins at registration time.
func New(cfg Config, caps []string) *Engine {
	return &Engine{cfg: cfg, caps: caps, tracer: otel.Tracer(tracerName)}
}

// Run executes the full Pipeline Engine algorithm from SPEC_FULL.md
// section 4.8 against the repository at repoPath, using plugins as the
// built-in and external plugin set.
func (e *Engine) Run(ctx context.Context, repoPath string, plugins []plugin.Plugin) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Run", trace.WithAttributes(attribute.String("repo.path", repoPath)))
	defer span.End()

	ballast := applyRuntimeTuning(e.cfg)
	_ = ballast // kept alive for the run's duration by this local's scope

	repo, err := gitlib.OpenRepository(repoPath)
	if err != nil {
		return Result{}, fmt.Errorf("engine: open repository: %w", err)
	}
	defer repo.Free()

	reg := registry.New(e.caps)

	for _, p := range plugins {
		if regErr := reg.Register(p); regErr != nil {
			return Result{}, fmt.Errorf("engine: register plugin: %w", regErr)
		}
	}

	// Requirements are declared on Descriptor(), independent of lifecycle
	// state, so the Runtime scan profile can be derived before plugins
	// are handed a Context that itself carries that profile.
	reqs := reg.Requirements()
	pluginProfile, scanProfile := deriveProfile(reqs, e.cfg.CheckoutRoot)

	initErrs := reg.InitialiseAll(ctx, plugin.Context{RepoPath: repoPath, Profile: pluginProfile})

	bus := notify.New(notify.Config{MaxEventsPerSecond: e.cfg.BusMaxEventsPerSecond})
	reg.SubscribeAll(bus)

	var checkoutMgr *checkout.Manager

	if pluginProfile.CheckoutEnabled {
		checkoutMgr = checkout.New(repo, e.cfg.CheckoutRoot, pluginProfile.MaxFileSize)
		defer checkoutMgr.ReleaseAll() //nolint:errcheck // best-effort cleanup on shutdown
	}

	q := queue.New(queue.Config{
		Ceiling:           e.cfg.QueueCeiling,
		BackoffBase:       time.Second,
		BackoffMultiplier: 4,
		BackoffCeiling:    30 * time.Second,
	}, nil, func(depth int, bytes int64, pressure queue.Pressure) {
		bus.Publish(notify.Event{Kind: notify.QueueUpdate, Depth: depth, Bytes: bytes, Pressure: pressure.String()})
	})

	bus.Publish(notify.Event{Kind: notify.ScanStarted})

	var warnings int64

	sink := &engineSink{queue: q, bus: bus, warnings: &warnings}

	var wg sync.WaitGroup

	dispatchErrs := make(map[string]error)

	var dispatchMu sync.Mutex

	for range max(e.cfg.Workers, 1) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			e.dispatchLoop(ctx, reg, q, &dispatchMu, dispatchErrs)
		}()
	}

	sc := scanner.New(repo, checkoutMgr)

	scanResult, scanErr := sc.Scan(ctx, scanProfile, sink)

	q.Close()
	wg.Wait()

	for id, err := range initErrs {
		dispatchMu.Lock()
		dispatchErrs[id] = err
		dispatchMu.Unlock()
	}

	bus.Publish(notify.Event{
		Kind:      notify.ScanCompleted,
		Processed: scanResult.CommitsVisited,
		Duration:  scanResult.Duration,
		Warnings:  int(warnings),
	})

	timedOut := !e.waitForIdle(reg, e.cfg.ShutdownDeadline)
	if timedOut {
		bus.Publish(notify.Event{Kind: notify.ScanWarning, Message: ErrShutdownTimedOut.Error(), Recoverable: false})
	}

	reports, finalErrs := reg.FinalizeAggregators(ctx)
	for id, err := range finalErrs {
		dispatchErrs[id] = err
	}

	for id, err := range reg.FinaliseAll(ctx) {
		dispatchErrs[id] = err
	}

	result := Result{
		CommitsVisited: scanResult.CommitsVisited,
		FilesChanged:   scanResult.FilesChanged,
		Warnings:       int(warnings),
		Duration:       scanResult.Duration,
		Reports:        reports,
		PluginErrors:   dispatchErrs,
		TimedOut:       timedOut,
	}

	if scanErr != nil {
		return result, fmt.Errorf("engine: scan failed: %w", scanErr)
	}

	return result, nil
}

// dispatchLoop drains the queue and fans each message out to
// StreamHandler plugins, re-enqueueing any derived messages so they in
// turn reach downstream plugins.
func (e *Engine) dispatchLoop(ctx context.Context, reg *registry.Registry, q *queue.Queue, mu *sync.Mutex, errs map[string]error) {
	for {
		msg, ok := q.Dequeue()
		if !ok {
			return
		}

		derived, pluginErrs := reg.Dispatch(ctx, msg)

		mu.Lock()
		for id, err := range pluginErrs {
			errs[id] = err
		}
		mu.Unlock()

		for _, d := range derived {
			if err := q.Enqueue(ctx, d); err != nil {
				return
			}
		}
	}
}

// waitForIdle polls the registry until every active plugin is Idle or
// the deadline elapses, returning false on timeout.
func (e *Engine) waitForIdle(reg *registry.Registry, deadline time.Duration) bool {
	if deadline <= 0 {
		return reg.Idle()
	}

	const pollInterval = 10 * time.Millisecond

	timeout := time.After(deadline)
	ticker := time.NewTicker(pollInterval)

	defer ticker.Stop()

	for {
		if reg.Idle() {
			return true
		}

		select {
		case <-timeout:
			return reg.Idle()
		case <-ticker.C:
		}
	}
}

// engineSink adapts the Queue and Notification Bus to scanner.Sink:
// emitted messages are enqueued (blocking under backpressure per the
// Bounded Message Queue's admission contract), and warnings are
// published as ScanWarning events.
type engineSink struct {
	queue    *queue.Queue
	bus      *notify.Bus
	warnings *int64
}

func (s *engineSink) Emit(ctx context.Context, msg message.Message) error {
	return s.queue.Enqueue(ctx, msg)
}

func (s *engineSink) Warn(_ context.Context, text string) {
	atomic.AddInt64(s.warnings, 1)
	s.bus.Publish(notify.Event{Kind: notify.ScanWarning, Message: text, Recoverable: true})
}
