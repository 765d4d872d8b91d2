package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Metrics      *Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Breaker is a failure-ratio circuit breaker. Once MinRequests outcomes have
// been seen and the failure ratio reaches FailureRatio, calls are refused for
// OpenFor; the first call afterwards is a half-open trial whose outcome decides
// whether the breaker closes again.
//
// Allow hands out the current generation, which changes on every state
// transition. Report drops outcomes from an older generation, so a slow call
// admitted while closed cannot settle a later half-open trial.
type Breaker struct {
	mu          sync.Mutex
	state       State
	generation  uint64
	failures    int
	successes   int
	probing     bool
	openedAt    time.Time
	minRequests int
	ratio       float64
	openFor     time.Duration
	target      string
	metrics     *Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBreaker applies defaults to cfg and returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		minRequests: cfg.MinRequests,
		ratio:       cfg.FailureRatio,
		openFor:     cfg.OpenFor,
		target:      cfg.Target,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if b.minRequests <= 0 {
		b.minRequests = 1
	}
	if b.ratio <= 0 || b.ratio > 1 {
		b.ratio = 0.5
	}
	if b.openFor <= 0 {
		b.openFor = 30 * time.Second
	}
	if b.target == "" {
		b.target = "default"
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.recordStateLocked()
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed and the generation its outcome must
// be reported under. While half-open only one trial call is let through.
func (b *Breaker) Allow(ctx context.Context) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return b.generation, false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probing = true
		return b.generation, true
	case HalfOpen:
		if b.probing {
			return b.generation, false
		}
		b.probing = true
		return b.generation, true
	default:
		return b.generation, true
	}
}

// Report records the outcome of a call admitted by Allow under generation.
func (b *Breaker) Report(ctx context.Context, generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		return
	}
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.ratio {
		b.changeStateLocked(ctx, Open)
		return
	}
	if total > b.minRequests*2 {
		// keep the window recent
		b.successes = (b.successes + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

// Do runs fn when the breaker allows it and reports fn's outcome.
// Errors for which ignore returns true count as successes.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, ignore func(error) bool) error {
	generation, ok := b.Allow(ctx)
	if !ok {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.Report(ctx, generation, err == nil || (ignore != nil && ignore(err)))
	return err
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.generation++
	b.failures, b.successes = 0, 0
	if next == Open {
		b.openedAt = b.now()
	}
	b.recordStateLocked()
	if b.metrics != nil {
		b.metrics.Transitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	}

	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	evt = evt.Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordStateLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.State.WithLabelValues(b.target).Set(float64(b.state))
}
