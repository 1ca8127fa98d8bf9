package session

import (
	"net"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// BaseSessionManager 是基于内存 map 与读写锁的 SessionManager 实现。
type BaseSessionManager struct {
	mu       sync.RWMutex
	lastID   uint64
	sessions map[uint64]*Session
}

var _ SessionManager = (*BaseSessionManager)(nil)

func NewBaseSessionManager() *BaseSessionManager {
	return &BaseSessionManager{
		sessions: make(map[uint64]*Session),
	}
}

func (m *BaseSessionManager) Register(out Outbound, remote net.Addr) *Session {
	m.mu.Lock()
	m.lastID++
	sess := newSession(m.lastID, out, remote)
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	return sess
}

func (m *BaseSessionManager) SetName(id uint64, name string) bool {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return sess.activate(name)
}

func (m *BaseSessionManager) Get(id uint64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *BaseSessionManager) Remove(id uint64) (*Session, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	sess.terminate()
	metrics.SessionsActive.Dec()
	return sess, true
}

func (m *BaseSessionManager) All() []*Session {
	m.mu.RLock()
	snapshot := lo.Values(m.sessions)
	m.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b *Session) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return snapshot
}

func (m *BaseSessionManager) Range(fn func(sess *Session) bool) {
	if fn == nil {
		return
	}
	for _, sess := range m.All() {
		if !fn(sess) {
			return
		}
	}
}

func (m *BaseSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *BaseSessionManager) Broadcast(pkt protocol.Packet) error {
	var errs []error
	for _, sess := range m.All() {
		if err := sess.Send(pkt); err != nil {
			errs = append(errs, err)
		}
	}
	return merr.Combine(errs...)
}
