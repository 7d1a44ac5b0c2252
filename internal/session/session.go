// Package session tracks active stream sessions: a concurrent registry with
// an atomically adjustable concurrency cap, in the shape of the pack's proxy
// session registry (sync.Map keyed by a uuid session id, atomic counters for
// the fields a reader updates off the hot path).
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/streamforge/tuner-gateway/internal/metrics"
)

// Info describes one admitted stream session.
type Info struct {
	ID           string
	AccountID    int64
	StreamID     int64
	EpgChannelID int64
	ClientIP     string
	StartedAt    time.Time

	lastActivity int64 // atomic unix nano
	bytesSent    int64 // atomic
}

// Touch records stream activity: bytes written and a fresh last-activity
// timestamp, exposed through BytesSent and LastActivity.
func (i *Info) Touch(n int) {
	atomic.StoreInt64(&i.lastActivity, time.Now().UnixNano())
	atomic.AddInt64(&i.bytesSent, int64(n))
}

func (i *Info) LastActivity() time.Time {
	v := atomic.LoadInt64(&i.lastActivity)
	if v == 0 {
		return i.StartedAt
	}
	return time.Unix(0, v)
}

func (i *Info) BytesSent() int64 { return atomic.LoadInt64(&i.bytesSent) }

// Manager admits and tracks sessions against an atomically adjustable
// concurrency cap. No queuing: a refused start returns immediately.
type Manager struct {
	sessions sync.Map // map[string]*Info
	size     int64    // atomic
	max      int64    // atomic
}

// NewManager creates a Manager with the given initial concurrency cap.
func NewManager(max int) *Manager {
	m := &Manager{}
	m.SetMax(max)
	return m
}

// SetMax updates the concurrency cap atomically; it never invalidates
// existing session references.
func (m *Manager) SetMax(n int) {
	atomic.StoreInt64(&m.max, int64(n))
}

// CanStart reports whether a new session would currently be admitted.
func (m *Manager) CanStart() bool {
	return atomic.LoadInt64(&m.size) < atomic.LoadInt64(&m.max)
}

// Start admits a new session if the cap allows it, returning the created
// Info and true, or nil and false if the gateway is at capacity.
func (m *Manager) Start(accountID, streamID, epgChannelID int64, clientIP string) (*Info, bool) {
	for {
		size := atomic.LoadInt64(&m.size)
		if size >= atomic.LoadInt64(&m.max) {
			metrics.SessionsRejectedTotal.Inc()
			return nil, false
		}
		if atomic.CompareAndSwapInt64(&m.size, size, size+1) {
			break
		}
	}

	info := &Info{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		StreamID:     streamID,
		EpgChannelID: epgChannelID,
		ClientIP:     clientIP,
		StartedAt:    time.Now(),
		lastActivity: time.Now().UnixNano(),
	}
	m.sessions.Store(info.ID, info)
	metrics.SessionsActive.Set(float64(atomic.LoadInt64(&m.size)))
	return info, true
}

// End removes a session, freeing a concurrency slot.
func (m *Manager) End(id string) {
	if _, ok := m.sessions.LoadAndDelete(id); ok {
		atomic.AddInt64(&m.size, -1)
		metrics.SessionsActive.Set(float64(atomic.LoadInt64(&m.size)))
	}
}

// Get returns the session for id, if it exists.
func (m *Manager) Get(id string) (*Info, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Info), true
}

// List returns every active session.
func (m *Manager) List() []*Info {
	var out []*Info
	m.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Info))
		return true
	})
	return out
}

// Size returns the current number of active sessions.
func (m *Manager) Size() int {
	return int(atomic.LoadInt64(&m.size))
}
