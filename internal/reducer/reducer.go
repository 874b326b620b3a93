package reducer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"video-reducer/internal/logging"
)

// Config holds the reducer's tunables.
type Config struct {
	// Ceiling is the maximum accepted output size in bytes.
	Ceiling uint64

	ProbeTimeout    time.Duration
	FinalizeTimeout time.Duration
	GuardSlack      time.Duration
	Timeslice       time.Duration
}

// DefaultConfig returns the production defaults (10 MiB ceiling).
func DefaultConfig() Config {
	return Config{
		Ceiling:         DefaultCeiling,
		ProbeTimeout:    DefaultProbeTimeout,
		FinalizeTimeout: DefaultFinalizeTimeout,
		GuardSlack:      DefaultGuardSlack,
		Timeslice:       DefaultTimeslice,
	}
}

// Option customizes a Reducer.
type Option func(*Reducer)

// WithClock replaces the clock used for the guard and finalize timers.
func WithClock(c Clock) Option {
	return func(r *Reducer) { r.relay.clock = c }
}

// WithObserver registers an observer for attempt and result events.
func WithObserver(o Observer) Option {
	return func(r *Reducer) {
		if o != nil {
			r.observer = o
		}
	}
}

// Reducer runs reduction requests. It holds no per-request state, so one
// Reducer can serve concurrent calls.
type Reducer struct {
	cfg      Config
	player   Player
	relay    *frameRelay
	observer Observer
	log      *logging.Logger
}

// New creates a Reducer from its collaborators. Zero fields in cfg take their
// defaults.
func New(player Player, rasterizer Rasterizer, encoders Encoders, cfg Config, opts ...Option) *Reducer {
	def := DefaultConfig()
	if cfg.Ceiling == 0 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = def.FinalizeTimeout
	}
	if cfg.GuardSlack <= 0 {
		cfg.GuardSlack = def.GuardSlack
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = def.Timeslice
	}

	r := &Reducer{
		cfg:    cfg,
		player: player,
		relay: &frameRelay{
			player:          player,
			rasterizer:      rasterizer,
			encoders:        encoders,
			clock:           SystemClock(),
			guardSlack:      cfg.GuardSlack,
			timeslice:       cfg.Timeslice,
			finalizeTimeout: cfg.FinalizeTimeout,
		},
		observer: nopObserver{},
		log:      logging.Component("reducer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ceiling returns the configured size ceiling in bytes.
func (r *Reducer) Ceiling() uint64 {
	return r.cfg.Ceiling
}

type state int

const (
	stateProbing state = iota
	statePlanning
	stateEncoding
	stateEvaluating
	stateAccepted
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateProbing:
		return "probing"
	case statePlanning:
		return "planning"
	case stateEncoding:
		return "encoding"
	case stateEvaluating:
		return "evaluating"
	case stateAccepted:
		return "accepted"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// request is the state owned by a single Reduce call.
type request struct {
	src       SourceMedia
	trace     *Trace
	state     state
	meta      MediaMetadata
	plan      ReductionPlan
	next      int
	attempts  int
	candidate []byte
	mimeType  string
	err       error
	log       *logging.Logger
}

func (q *request) transition(to state) {
	q.log.Debug("%s -> %s", q.state, to)
	q.state = to
}

func (q *request) fail(err error) {
	q.err = err
	q.transition(stateFailed)
}

// Reduce returns src unchanged if it already fits under the ceiling, and
// otherwise a re-encoded blob no larger than the ceiling. It fails with one
// of the package's sentinel errors; an oversized candidate is never returned.
func (r *Reducer) Reduce(ctx context.Context, src SourceMedia) (*Result, error) {
	start := time.Now()
	q := &request{
		src:   src,
		trace: ContextTrace(ctx),
		state: stateProbing,
		log:   r.log.With(uuid.NewString()[:8]),
	}

	res, err := r.run(ctx, q)

	var resultSize uint64
	if res != nil {
		resultSize = res.Size()
	}
	r.observer.ObserveResult(res != nil && res.Reencoded, q.attempts, src.Size(), resultSize, err, time.Since(start).Seconds())

	if err != nil {
		q.log.Warn("reduction of %s (%d bytes) failed after %d attempt(s): %v", src.Name, src.Size(), q.attempts, err)
		return nil, err
	}
	if res.Reencoded {
		q.log.Info("reduced %s from %d to %d bytes in %d attempt(s) (%v)",
			src.Name, src.Size(), res.Size(), res.Attempts, time.Since(start).Round(time.Millisecond))
	}
	return res, nil
}

func (r *Reducer) run(ctx context.Context, q *request) (*Result, error) {
	if q.src.Size() <= r.cfg.Ceiling {
		q.log.Debug("%s is %d bytes, within the %d byte ceiling", q.src.Name, q.src.Size(), r.cfg.Ceiling)
		return &Result{Data: q.src.Data, MimeType: q.src.MimeType}, nil
	}

	for {
		switch q.state {
		case stateProbing:
			meta, err := Probe(ctx, r.player, q.src, r.cfg.ProbeTimeout)
			if err != nil {
				q.fail(err)
				continue
			}
			q.meta = meta
			q.trace.probed(meta)
			q.log.Debug("probed %s: %.2fs %dx%d, at most %d attempt(s)", q.src.Name, meta.DurationSeconds,
				meta.Width, meta.Height, MaxAttempts(q.src.Size(), meta.DurationSeconds, r.cfg.Ceiling))
			q.transition(statePlanning)

		case statePlanning:
			plan, err := PlanAttempt(q.src.Size(), q.meta.DurationSeconds, r.cfg.Ceiling, q.next)
			if err != nil {
				q.fail(err)
				continue
			}
			q.plan = plan
			q.transition(stateEncoding)

		case stateEncoding:
			q.candidate = nil
			q.attempts++
			a := newAttempt(q.plan, q.log)
			q.trace.attemptStarted(q.plan)
			started := time.Now()
			candidate, err := r.relay.run(ctx, q.src, q.meta, a)
			if err != nil {
				a.outcome = OutcomeFailed
				r.observer.ObserveAttempt(q.plan, 0, a.outcome, time.Since(started).Seconds())
				q.trace.attemptDone(q.plan, 0, a.outcome)
				q.fail(err)
				continue
			}
			q.candidate, q.mimeType = candidate, a.mimeType
			q.transition(stateEvaluating)

			outcome := OutcomeRetryNeeded
			if uint64(len(candidate)) <= r.cfg.Ceiling {
				outcome = OutcomeAccepted
			}
			a.outcome = outcome
			r.observer.ObserveAttempt(q.plan, uint64(len(candidate)), outcome, time.Since(started).Seconds())
			q.trace.attemptDone(q.plan, uint64(len(candidate)), outcome)

		case stateEvaluating:
			size := uint64(len(q.candidate))
			if size <= r.cfg.Ceiling {
				q.transition(stateAccepted)
				continue
			}
			q.log.Debug("attempt %d produced %d bytes, over the %d byte ceiling", q.plan.Attempt, size, r.cfg.Ceiling)
			q.candidate = nil
			q.next++
			q.transition(statePlanning)

		case stateAccepted:
			return &Result{
				Data:      q.candidate,
				MimeType:  q.mimeType,
				Reencoded: true,
				Attempts:  q.attempts,
				Plan:      q.plan,
			}, nil

		case stateFailed:
			return nil, q.err

		default:
			return nil, fmt.Errorf("reducer in unknown state %d", q.state)
		}
	}
}
