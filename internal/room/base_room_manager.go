package room

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
	"github.com/lk2023060901/chatrelay-go/pkg/util/typeutil"
)

type chatRoom struct {
	id        uint64
	name      string
	creator   uint64
	members   typeutil.Set[uint64]
	createdAt time.Time
}

func (r *chatRoom) snapshot() Room {
	return Room{
		ID:        r.id,
		Name:      r.name,
		Creator:   r.creator,
		Members:   typeutil.Sorted(r.members),
		CreatedAt: r.createdAt,
	}
}

// BaseRoomManager 是基于内存 map 与读写锁的 RoomManager 实现。
type BaseRoomManager struct {
	mu     sync.RWMutex
	lastID uint64
	rooms  map[uint64]*chatRoom
}

var _ RoomManager = (*BaseRoomManager)(nil)

func NewBaseRoomManager() *BaseRoomManager {
	return &BaseRoomManager{
		rooms: make(map[uint64]*chatRoom),
	}
}

func (m *BaseRoomManager) Create(creator uint64, name string) uint64 {
	m.mu.Lock()
	m.lastID++
	r := &chatRoom{
		id:        m.lastID,
		name:      name,
		creator:   creator,
		members:   typeutil.NewSet(creator),
		createdAt: time.Now(),
	}
	m.rooms[r.id] = r
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	return r.id
}

func (m *BaseRoomManager) Join(roomID, sessionID uint64) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, merr.WrapErrRoomNotFound(roomID)
	}
	if !r.members.TryInsert(sessionID) {
		return r.snapshot(), merr.WrapErrAlreadyMember(roomID, sessionID)
	}
	return r.snapshot(), nil
}

func (m *BaseRoomManager) Leave(roomID, sessionID uint64) (Room, error) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return Room{}, merr.WrapErrRoomNotFound(roomID)
	}
	if !r.members.TryRemove(sessionID) {
		snap := r.snapshot()
		m.mu.Unlock()
		return snap, merr.WrapErrNotMember(roomID, sessionID)
	}
	snap := r.snapshot()
	if r.members.Len() == 0 {
		delete(m.rooms, roomID)
	}
	count := len(m.rooms)
	m.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	return snap, nil
}

func (m *BaseRoomManager) RemoveSessionEverywhere(sessionID uint64) []uint64 {
	m.mu.Lock()
	var affected []uint64
	for id, r := range m.rooms {
		if !r.members.TryRemove(sessionID) {
			continue
		}
		affected = append(affected, id)
		if r.members.Len() == 0 {
			delete(m.rooms, id)
		}
	}
	count := len(m.rooms)
	m.mu.Unlock()

	slices.Sort(affected)
	metrics.RoomsActive.Set(float64(count))
	return affected
}

func (m *BaseRoomManager) Lookup(roomID, sessionID uint64) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, merr.WrapErrRoomNotFound(roomID)
	}
	snap := r.snapshot()
	if !r.members.Contain(sessionID) {
		return snap, merr.WrapErrNotMember(roomID, sessionID)
	}
	return snap, nil
}

func (m *BaseRoomManager) Get(roomID uint64) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return r.snapshot(), true
}

func (m *BaseRoomManager) Snapshot() []Room {
	m.mu.RLock()
	rooms := lo.MapToSlice(m.rooms, func(_ uint64, r *chatRoom) Room {
		return r.snapshot()
	})
	m.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b Room) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return rooms
}

func (m *BaseRoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
