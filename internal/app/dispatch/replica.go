package dispatch

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karaoke-hub/internal/domain/event"
)

// ErrNotBootstrapped is returned by Local before the first snapshot is loaded.
var ErrNotBootstrapped = errors.New("replica not bootstrapped")

// Publisher sends a locally originated event to the hub.
type Publisher interface {
	Publish(ev event.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev event.Event) error

func (f PublisherFunc) Publish(ev event.Event) error { return f(ev) }

// Replica is one client's copy of a session. Local optimistic updates and remote
// broadcasts both go through Apply, so applying a local event and then its echo
// leaves the same state as applying it once.
type Replica struct {
	mu        sync.RWMutex
	state     State
	ready     bool
	publisher Publisher
	onChange  func(State)
}

// NewReplica creates a replica that publishes local events through p.
func NewReplica(p Publisher) *Replica {
	return &Replica{publisher: p}
}

// OnChange registers fn to be called with the new state after every applied event.
func (r *Replica) OnChange(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// SetPublisher replaces the publisher, used after a reconnect.
func (r *Replica) SetPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = p
}

// Bootstrap replaces the state with a snapshot and starts accepting remote events.
func (r *Replica) Bootstrap(snapshot State) {
	r.mu.Lock()
	r.state = snapshot.Clone()
	r.ready = true
	fn, state := r.onChange, r.state.Clone()
	r.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// Reset drops the state. Remote events are ignored until the next Bootstrap.
func (r *Replica) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{}
	r.ready = false
}

// Ready reports whether a snapshot has been loaded.
func (r *Replica) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Local applies ev optimistically and publishes it. The local change is kept
// even if publishing fails; the next bootstrap reconciles it.
func (r *Replica) Local(ev event.Event) error {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return ErrNotBootstrapped
	}
	r.state = Apply(r.state, ev)
	p, fn, state := r.publisher, r.onChange, r.state.Clone()
	r.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	if p == nil {
		return nil
	}
	return errors.Wrap(p.Publish(ev), "failed to publish event")
}

// Remote applies a broadcast event. Events received before Bootstrap are
// dropped and Remote returns false.
func (r *Replica) Remote(ev event.Event) bool {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return false
	}
	r.state = Apply(r.state, ev)
	fn, state := r.onChange, r.state.Clone()
	r.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return true
}

// State returns a copy of the current state.
func (r *Replica) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}
