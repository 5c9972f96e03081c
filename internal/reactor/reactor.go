// ABOUTME: Single-threaded cooperative task queue shared by all I/O and registry mutation
// ABOUTME: The capture thread posts closures here instead of touching the registry directly
package reactor

// Reactor serializes all registry mutation and UDP socket access onto one
// goroutine, matching the reference implementation's single-threaded
// cooperative scheduler (spec.md §5). The capture thread and the UDP hello
// reader never call registry or fan-out methods directly; they Post a
// closure and the reactor goroutine runs it.
type Reactor struct {
	tasks chan func()
	done  chan struct{}
}

// NewReactor creates a reactor that is not yet running; call Run in its own
// goroutine.
func NewReactor() *Reactor {
	return &Reactor{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Run drains the task queue until Stop is called. It is meant to be the
// body of the controller's single worker goroutine.
func (r *Reactor) Run() {
	for {
		select {
		case <-r.done:
			return
		default:
		}
		select {
		case fn := <-r.tasks:
			fn()
		case <-r.done:
			return
		}
	}
}

// Post enqueues fn to run on the reactor goroutine and reports whether it
// was accepted. If the reactor has already stopped, fn is dropped silently
// and Post returns false — equivalent to the reference's "outstanding
// awaits complete with a cancellation error treated as exit cleanly".
func (r *Reactor) Post(fn func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.tasks <- fn:
		return true
	case <-r.done:
		return false
	}
}

// Call posts fn and blocks until it has run on the reactor goroutine,
// returning false instead of hanging if the reactor stops first. Use this
// when the caller needs a result from a registry mutation (e.g. the
// SessionId from Admit) without reaching into the registry from a
// non-reactor goroutine.
func (r *Reactor) Call(fn func()) bool {
	finished := make(chan struct{})
	if !r.Post(func() {
		fn()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-r.done:
		return false
	}
}

// Stop signals the reactor to exit after draining no further tasks. It
// does not wait for Run to return; callers join via the controller's
// WaitGroup.
func (r *Reactor) Stop() {
	select {
	case <-r.done:
		// already stopped
	default:
		close(r.done)
	}
}
