// Package notify implements the asynchronous, single-process Notification
// Bus described in SPEC_FULL.md section 4.6: fan-out of lifecycle and
// progress events to subscribers, rate-limited and filtered.
package notify

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventKind enumerates the Notification Bus event table.
type EventKind int

const (
	// ScanStarted marks pipeline boot.
	ScanStarted EventKind = iota
	// ScanProgress is a periodic update during a scan.
	ScanProgress
	// ScanDataReady signals the scanner produced a new upstream batch.
	ScanDataReady
	// DataReady signals a plugin finished its analysis output.
	DataReady
	// ScanCompleted marks the scanner done.
	ScanCompleted
	// ScanError is a scan error; Fatal indicates pipeline abort.
	ScanError
	// ScanWarning is a non-fatal scan condition.
	ScanWarning
	// QueueUpdate is a backpressure signal.
	QueueUpdate
	// SystemEvent is a generic lifecycle event (startup, shutdown, config change).
	SystemEvent
)

// Event is one notification. Only the fields relevant to Kind are
// meaningful, mirroring message.Message's tagged-variant shape.
type Event struct {
	Kind EventKind
	At   time.Time

	ScanID     string
	Processed  int
	Duration   time.Duration
	DataType   string
	Count      int
	PluginID   string
	Warnings   int
	Message    string
	Fatal      bool
	Recoverable bool
	Depth      int
	Bytes      int64
	Pressure   string
	SystemKind string
}

// Preferences filters which event kinds a subscriber receives, applied
// before the event is enqueued to the subscriber's channel.
type Preferences struct {
	// Kinds, if non-nil, is the allow-list of EventKinds this subscriber
	// wants. A nil map means "all kinds".
	Kinds map[EventKind]bool
}

// Allows reports whether the preferences admit the given kind.
func (p Preferences) Allows(kind EventKind) bool {
	if p.Kinds == nil {
		return true
	}

	return p.Kinds[kind]
}

const subscriberChannelSize = 64

type subscriber struct {
	ch          chan Event
	prefs       Preferences
	dropped     prometheus.Counter
	droppedCnt  int64
	mu          sync.Mutex
}

// Bus is the Notification Bus. Delivery is at-most-once per subscriber,
// in-order per subscriber; a slow subscriber drops its oldest buffered
// event rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int

	rateLimiter *rateLimiter
}

// Config bounds the Bus's global publish rate.
type Config struct {
	// MaxEventsPerSecond caps total publish throughput across all
	// subscribers; zero disables the ceiling.
	MaxEventsPerSecond int
}

// New creates an empty Bus.
func New(cfg Config) *Bus {
	b := &Bus{subscribers: make(map[int]*subscriber)}
	if cfg.MaxEventsPerSecond > 0 {
		b.rateLimiter = newRateLimiter(cfg.MaxEventsPerSecond)
	}

	return b
}

// Subscription is a handle returned by Subscribe, used to receive events
// and to Unsubscribe.
type Subscription struct {
	id   int
	bus  *Bus
	C    <-chan Event
}

// Subscribe registers a new subscriber with the given preferences.
// dropped, if non-nil, is incremented whenever this subscriber's
// channel overflows and an event is dropped.
func (b *Bus) Subscribe(prefs Preferences, dropped prometheus.Counter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &subscriber{
		ch:      make(chan Event, subscriberChannelSize),
		prefs:   prefs,
		dropped: dropped,
	}
	b.subscribers[id] = sub

	return &Subscription{id: id, bus: b, C: sub.ch}
}

// Unsubscribe detaches the subscription; its channel is closed.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if sub, ok := s.bus.subscribers[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subscribers, s.id)
	}
}

// Publish delivers ev to every subscriber whose preferences admit it. A
// subscriber whose channel is full has its oldest buffered event dropped
// to make room, per the delivery contract in SPEC_FULL.md section 4.6.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	if b.rateLimiter != nil && !b.rateLimiter.allow() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.prefs.Allows(ev.Kind) {
			continue
		}

		sub.deliver(ev)
	}
}

func (s *subscriber) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Channel full: drop the oldest buffered event, then retry once.
	select {
	case <-s.ch:
		s.droppedCnt++

		if s.dropped != nil {
			s.dropped.Inc()
		}
	default:
	}

	select {
	case s.ch <- ev:
	default:
		// Another producer raced us; give up silently rather than block
		// the publisher, per the "slow subscribers cannot block" contract.
	}
}

// rateLimiter is a simple token-bucket limiter for the Bus's global
// publish-rate ceiling.
type rateLimiter struct {
	mu       sync.Mutex
	perSec   int
	tokens   float64
	lastFill time.Time
}

func newRateLimiter(perSec int) *rateLimiter {
	return &rateLimiter{perSec: perSec, tokens: float64(perSec), lastFill: time.Now()}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastFill).Seconds()
	r.lastFill = now
	r.tokens += elapsed * float64(r.perSec)

	if r.tokens > float64(r.perSec) {
		r.tokens = float64(r.perSec)
	}

	if r.tokens < 1 {
		return false
	}

	r.tokens--

	return true
}
