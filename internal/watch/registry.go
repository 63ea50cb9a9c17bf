package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidDuration is returned when a countdown duration is negative.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrSchedule wraps failures of the underlying Scheduler.
	ErrSchedule = errors.New("schedule countdown")
)

// State is the coarse indicator derived from the active count.
type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
)

// Status is emitted after every mutating operation.
type Status struct {
	ActiveCount int   `json:"activeCount"`
	State       State `json:"state"`
}

// Text renders the status the way a host would label its indicator.
func (s Status) Text() string {
	if s.ActiveCount == 0 {
		return string(StateIdle)
	}
	if s.ActiveCount == 1 {
		return "tracking 1 topic"
	}
	return fmt.Sprintf("tracking %d topics", s.ActiveCount)
}

func statusFor(count int) Status {
	if count == 0 {
		return Status{State: StateIdle}
	}
	return Status{ActiveCount: count, State: StateTracking}
}

// Fired describes a countdown that reached its deadline without being cancelled.
type Fired struct {
	Topic   string        `json:"topic"`
	Payload any           `json:"payload"`
	WatchID string        `json:"watchId"`
	ArmedAt time.Time     `json:"armedAt"`
	Timeout time.Duration `json:"timeout"`
}

// Info is a read-only view of an armed watch.
type Info struct {
	Topic    string        `json:"topic"`
	WatchID  string        `json:"watchId"`
	ArmedAt  time.Time     `json:"armedAt"`
	Timeout  time.Duration `json:"timeout"`
	Deadline time.Time     `json:"deadline"`
}

// Sink receives everything the registry emits. Calls are serialized and
// arrive in the order the mutations happened. A Sink must not call back into
// the registry from inside these methods.
type Sink interface {
	Fired(ev Fired)
	Status(st Status)
	Trace(line string)
}

type discardSink struct{}

func (discardSink) Fired(Fired)   {}
func (discardSink) Status(Status) {}
func (discardSink) Trace(string)  {}

// entry is one armed countdown. It records its own topic so the fire
// callback never has to trust a captured map value.
type entry struct {
	id      string
	topic   string
	timeout time.Duration
	armedAt time.Time
	timer   Timer
	done    bool
}

// Registry maps topic keys to their live countdown.
type Registry struct {
	mu      sync.Mutex
	watches map[string]*entry

	// emitMu is taken before mu is released so sink calls keep mutation order.
	emitMu sync.Mutex
	sink   Sink

	scheduler Scheduler
	payload   any
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeoutPayload sets the payload carried by every Fired event.
func WithTimeoutPayload(payload any) Option {
	return func(r *Registry) {
		r.payload = payload
	}
}

// WithScheduler replaces the runtime timer, mostly for tests.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) {
		r.scheduler = s
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry that reports to sink.
// A nil sink discards all events.
func NewRegistry(sink Sink, opts ...Option) *Registry {
	if sink == nil {
		sink = discardSink{}
	}
	r := &Registry{
		watches:   make(map[string]*entry),
		sink:      sink,
		scheduler: RuntimeScheduler(),
		logger:    slog.Default().With("service", "watch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register arms a countdown of d for topic. It returns false without touching
// anything when topic is already armed. A scheduling failure leaves the
// registry unchanged and is returned wrapped in ErrSchedule.
func (r *Registry) Register(topic string, d time.Duration) (bool, error) {
	if d < 0 {
		return false, fmt.Errorf("register %q: %w", topic, ErrInvalidDuration)
	}

	r.mu.Lock()

	if existing, armed := r.watches[topic]; armed {
		r.logger.Debug("Topic already armed, ignoring register",
			"topic", topic,
			"watch_id", existing.id)
		r.release(func(s Sink) {
			s.Trace(fmt.Sprintf("register %q ignored: already armed", topic))
		})
		return false, nil
	}

	e := &entry{
		id:      uuid.NewString(),
		topic:   topic,
		timeout: d,
		armedAt: time.Now(),
	}

	// The callback blocks on mu until this method has inserted e, so a
	// zero-length countdown still observes a consistent map.
	timer, err := r.scheduler.AfterFunc(d, func() { r.fire(e) })
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("Failed to schedule countdown", "topic", topic, "error", err)
		return false, fmt.Errorf("%w for %q: %w", ErrSchedule, topic, err)
	}
	e.timer = timer
	r.watches[topic] = e

	st := statusFor(len(r.watches))
	r.logger.Debug("Armed countdown",
		"topic", topic,
		"watch_id", e.id,
		"timeout", d,
		"active", st.ActiveCount)

	r.release(func(s Sink) {
		s.Status(st)
		s.Trace(fmt.Sprintf("registered %q for %s", topic, d))
	})
	return true, nil
}

// Cancel stops the countdown for topic. It reports whether a live countdown
// was actually cancelled; false means nothing was armed and nothing changed.
func (r *Registry) Cancel(topic string) bool {
	r.mu.Lock()

	e, armed := r.watches[topic]
	if !armed {
		r.release(func(s Sink) {
			s.Trace(fmt.Sprintf("cancel %q: nothing armed", topic))
		})
		return false
	}

	e.done = true
	e.timer.Stop()
	delete(r.watches, topic)

	st := statusFor(len(r.watches))
	r.logger.Debug("Cancelled countdown",
		"topic", topic,
		"watch_id", e.id,
		"active", st.ActiveCount)

	r.release(func(s Sink) {
		s.Status(st)
		s.Trace(fmt.Sprintf("cancelled %q", topic))
	})
	return true
}

// fire runs on the timer goroutine when e's deadline passes.
func (r *Registry) fire(e *entry) {
	r.mu.Lock()

	// Lost the race against Cancel or Shutdown, or e was replaced.
	if e.done || r.watches[e.topic] != e {
		r.mu.Unlock()
		return
	}

	e.done = true
	delete(r.watches, e.topic)

	st := statusFor(len(r.watches))
	ev := Fired{
		Topic:   e.topic,
		Payload: r.payload,
		WatchID: e.id,
		ArmedAt: e.armedAt,
		Timeout: e.timeout,
	}
	r.logger.Debug("Countdown fired",
		"topic", e.topic,
		"watch_id", e.id,
		"active", st.ActiveCount)

	r.release(func(s Sink) {
		s.Status(st)
		s.Trace(fmt.Sprintf("timeout %q after %s", e.topic, e.timeout))
		s.Fired(ev)
	})
}

// Shutdown stops every countdown without emitting Fired events and empties
// the registry. It is safe to call repeatedly.
func (r *Registry) Shutdown() {
	r.mu.Lock()

	cleared := len(r.watches)
	for _, e := range r.watches {
		e.done = true
		e.timer.Stop()
	}
	r.watches = make(map[string]*entry)

	if cleared > 0 {
		r.logger.Info("Cleared all countdowns", "count", cleared)
	}

	r.release(func(s Sink) {
		s.Status(statusFor(0))
		s.Trace(fmt.Sprintf("shutdown cleared %d topic(s)", cleared))
	})
}

// Count returns the number of armed topics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Status returns the current status without emitting it.
func (r *Registry) Status() Status {
	return statusFor(r.Count())
}

// Armed reports whether topic currently has a live countdown.
func (r *Registry) Armed(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watches[topic]
	return ok
}

// Active lists the armed watches ordered by deadline.
func (r *Registry) Active() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.watches))
	for _, e := range r.watches {
		infos = append(infos, Info{
			Topic:    e.topic,
			WatchID:  e.id,
			ArmedAt:  e.armedAt,
			Timeout:  e.timeout,
			Deadline: e.armedAt.Add(e.timeout),
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Deadline.Equal(infos[j].Deadline) {
			return infos[i].Topic < infos[j].Topic
		}
		return infos[i].Deadline.Before(infos[j].Deadline)
	})
	return infos
}

// release must be called with mu held. It takes emitMu, drops mu, and runs
// fn against the sink, so emissions from two mutations cannot reorder while
// the sink itself still runs outside the state lock.
func (r *Registry) release(fn func(s Sink)) {
	r.emitMu.Lock()
	r.mu.Unlock()
	defer r.emitMu.Unlock()
	fn(r.sink)
}
