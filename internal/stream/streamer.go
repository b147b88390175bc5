// Package stream delivers bounded, sanitized progress events from a
// verification run to a consumer. Non-terminal events are dropped under
// backpressure; the terminal event travels on a separate one-shot channel
// and is always delivered.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"cardcheck/internal/logging"
)

// EventType classifies a stream event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on the stream. Data is always sanitized before
// enqueue; Report is set only on the terminal complete event.
type Event struct {
	Type    EventType              `json:"type"`
	Message string                 `json:"message"`
	Step    int                    `json:"step"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Report  interface{}            `json:"report,omitempty"`
}

// State is the run lifecycle: pending -> running -> {completed, failed}.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Streamer owns the bounded progress queue for one run. Producers never
// block the pipeline: an event that cannot be enqueued within the enqueue
// timeout is dropped and counted.
type Streamer struct {
	queue          chan Event
	terminal       chan Event // cap 1, written at most once
	enqueueTimeout time.Duration

	state   atomic.Int32
	step    atomic.Int32
	dropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a streamer with a fixed queue capacity.
func New(capacity int, enqueueTimeout time.Duration) *Streamer {
	if capacity <= 0 {
		capacity = 256
	}
	if enqueueTimeout <= 0 {
		enqueueTimeout = 50 * time.Millisecond
	}
	return &Streamer{
		queue:          make(chan Event, capacity),
		terminal:       make(chan Event, 1),
		enqueueTimeout: enqueueTimeout,
		done:           make(chan struct{}),
	}
}

// Start moves the run from pending to running.
func (s *Streamer) Start() {
	s.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// Progress emits one non-terminal event. Payloads are sanitized first so
// queue memory stays bounded regardless of input size. Dropped silently if
// the consumer cannot keep up or the streamer is closed.
func (s *Streamer) Progress(message string, data map[string]interface{}) {
	if State(s.state.Load()) != StateRunning {
		return
	}
	ev := Event{
		Type:    EventProgress,
		Message: clipString(message),
		Step:    int(s.step.Add(1)),
		Data:    Sanitize(data),
	}

	timer := time.NewTimer(s.enqueueTimeout)
	defer timer.Stop()
	select {
	case s.queue <- ev:
	case <-timer.C:
		s.dropped.Add(1)
		logging.StreamWarn("dropped progress event %d under backpressure", ev.Step)
	case <-s.done:
		s.dropped.Add(1)
	}
}

// Complete delivers the terminal success event carrying the full report.
// Only the first terminal call wins; later calls are no-ops.
func (s *Streamer) Complete(message string, report interface{}) {
	if !s.toTerminal(StateCompleted) {
		return
	}
	s.terminal <- Event{
		Type:    EventComplete,
		Message: clipString(message),
		Step:    int(s.step.Add(1)),
		Report:  report,
	}
}

// Fail delivers the terminal error event. The message must already be
// user-facing; nothing here redacts stack traces.
func (s *Streamer) Fail(message string) {
	if !s.toTerminal(StateFailed) {
		return
	}
	s.terminal <- Event{
		Type:    EventError,
		Message: clipString(message),
		Step:    int(s.step.Add(1)),
	}
}

// toTerminal transitions running (or pending) into a terminal state once.
func (s *Streamer) toTerminal(target State) bool {
	for {
		cur := s.state.Load()
		if State(cur) == StateCompleted || State(cur) == StateFailed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(target)) {
			return true
		}
	}
}

// Events returns the bounded progress queue.
func (s *Streamer) Events() <-chan Event { return s.queue }

// Terminal returns the one-shot terminal channel.
func (s *Streamer) Terminal() <-chan Event { return s.terminal }

// CurrentState reports the lifecycle state.
func (s *Streamer) CurrentState() State { return State(s.state.Load()) }

// Dropped reports how many non-terminal events were discarded.
func (s *Streamer) Dropped() int64 { return s.dropped.Load() }

// Close releases the queue. Idempotent; called exactly once per run by the
// engine's lifecycle wrapper, whether the run completed, failed, or lost
// its consumer.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		// Drain whatever the consumer abandoned so buffered events are
		// reclaimable immediately.
		for {
			select {
			case <-s.queue:
			default:
				return
			}
		}
	})
}
