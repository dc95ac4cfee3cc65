package session

import (
	"sync/atomic"
	"time"

	"github.com/cephview/cephview/pkg/overlay"
)

// EndReason records why a session ended.
type EndReason int

const (
	// EndExplicit means the client or caller ended the session.
	EndExplicit EndReason = iota

	// EndIdle means the session exceeded the idle timeout.
	EndIdle

	// EndEvicted means the session was evicted to make room for a new one.
	EndEvicted

	// EndShutdown means the manager shut down.
	EndShutdown
)

// String returns the reason as a log-friendly string.
func (r EndReason) String() string {
	switch r {
	case EndExplicit:
		return "explicit"
	case EndIdle:
		return "idle"
	case EndEvicted:
		return "evicted"
	case EndShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Session is one comparison viewing session.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// IP is the client IP address for per-IP limiting.
	IP string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	registry   *overlay.Registry
	lastActive atomic.Int64 // unix nanoseconds
	viewers    atomic.Int32
	done       chan struct{}
}

func newSession(id, ip string, now time.Time, opts []overlay.Option) *Session {
	s := &Session{
		ID:        id,
		IP:        ip,
		CreatedAt: now,
		registry:  overlay.NewRegistry(opts...),
		done:      make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// Registry returns the overlay registry owned by this session.
func (s *Session) Registry() *overlay.Registry {
	return s.registry
}

// LastActive returns when the session was last accessed.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Done returns a channel that is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Attach records a live viewer on the session and returns the function that
// detaches it. Sessions with attached viewers are never ended as idle.
func (s *Session) Attach() (detach func()) {
	s.viewers.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			s.viewers.Add(-1)
		}
	}
}

// Viewers returns the number of attached viewers.
func (s *Session) Viewers() int {
	return int(s.viewers.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}
