package events

import (
	"sync"
	"time"

	"video-reducer/internal/logging"
	"video-reducer/internal/reducer"
)

// Type names an event.
type Type string

const (
	TypeProbed         Type = "probed"
	TypeAttemptStarted Type = "attempt_started"
	TypeAttemptDone    Type = "attempt_done"
	TypeCompleted      Type = "completed"
	TypeFailed         Type = "failed"
)

// Event is one progress update for a reduction request.
type Event struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"requestId"`
	Name      string    `json:"name,omitempty"`
	Time      time.Time `json:"time"`

	Attempt               int     `json:"attempt,omitempty"`
	TargetDurationSeconds float64 `json:"targetDurationSeconds,omitempty"`
	TargetBitrateBps      uint64  `json:"targetBitrateBps,omitempty"`
	FrameRate             int     `json:"frameRate,omitempty"`
	CandidateSize         uint64  `json:"candidateSize,omitempty"`
	Outcome               string  `json:"outcome,omitempty"`

	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Width           uint32  `json:"width,omitempty"`
	Height          uint32  `json:"height,omitempty"`

	ResultSize uint64 `json:"resultSize,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"errorKind,omitempty"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub distributes events to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	log    *logging.Logger
}

// Subscription receives events until Close is called or the hub closes.
type Subscription struct {
	hub     *Hub
	ch      chan Event
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

// NewHub creates a hub whose subscribers queue up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    logging.Component("events"),
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers e to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

// Events returns the delivery channel. It is closed when the subscription
// ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the queue was full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Trace returns reducer hooks that publish the progress of one request.
func (h *Hub) Trace(requestID, name string) *reducer.Trace {
	return &reducer.Trace{
		Probed: func(meta reducer.MediaMetadata) {
			h.Publish(Event{
				Type:            TypeProbed,
				RequestID:       requestID,
				Name:            name,
				DurationSeconds: meta.DurationSeconds,
				Width:           meta.Width,
				Height:          meta.Height,
			})
		},
		AttemptStarted: func(plan reducer.ReductionPlan) {
			h.Publish(planEvent(TypeAttemptStarted, requestID, name, plan))
		},
		AttemptDone: func(plan reducer.ReductionPlan, size uint64, outcome reducer.Outcome) {
			e := planEvent(TypeAttemptDone, requestID, name, plan)
			e.CandidateSize = size
			e.Outcome = outcome.String()
			h.Publish(e)
		},
	}
}

// Finish publishes the terminal event for a request.
func (h *Hub) Finish(requestID, name string, res *reducer.Result, err error) {
	if err != nil {
		h.Publish(Event{
			Type:      TypeFailed,
			RequestID: requestID,
			Name:      name,
			Error:     reducer.Message(err),
			ErrorKind: reducer.Kind(err),
		})
		return
	}

	e := Event{Type: TypeCompleted, RequestID: requestID, Name: name}
	if res != nil {
		e.ResultSize = res.Size()
		e.Attempt = res.Attempts
	}
	h.Publish(e)
	h.log.Debug("request %s finished", requestID)
}

func planEvent(t Type, requestID, name string, plan reducer.ReductionPlan) Event {
	return Event{
		Type:                  t,
		RequestID:             requestID,
		Name:                  name,
		Attempt:               plan.Attempt,
		TargetDurationSeconds: plan.TargetDurationSeconds,
		TargetBitrateBps:      plan.TargetBitrateBps,
		FrameRate:             plan.FrameRate,
	}
}
