// Package room 维护聊天室注册表。
//
// 聊天室按创建顺序分配 id（从 1 开始，不复用），名字不要求唯一。
// 最后一个成员离开时聊天室立即删除，因此注册表中不存在空聊天室。
package room

import (
	"slices"
	"time"
)

// Room 为聊天室的只读快照，Members 按会话 id 升序排列。
type Room struct {
	ID        uint64
	Name      string
	Creator   uint64
	Members   []uint64
	CreatedAt time.Time
}

// HasMember 判断会话是否在快照的成员列表中。
func (r Room) HasMember(sessionID uint64) bool {
	_, found := slices.BinarySearch(r.Members, sessionID)
	return found
}

// RoomManager 为聊天室注册表。
//
// 说明：
//   - 所有方法并发安全，返回值都是快照，调用方修改不会影响注册表；
//   - 对同一个聊天室的成员变更在注册表锁内完成，互相线性化。
type RoomManager interface {
	// Create 创建聊天室，创建者为唯一成员，返回新 id。
	Create(creator uint64, name string) uint64

	// Join 将会话加入聊天室。
	// 聊天室不存在返回 merr.ErrRoomNotFound，已是成员返回 merr.ErrAlreadyMember（附带快照）。
	Join(roomID, sessionID uint64) (Room, error)

	// Leave 将会话移出聊天室，成员为空时删除聊天室。
	// 聊天室不存在返回 merr.ErrRoomNotFound，不是成员返回 merr.ErrNotMember（附带快照）。
	Leave(roomID, sessionID uint64) (Room, error)

	// RemoveSessionEverywhere 将会话从所有聊天室移除，返回受影响的聊天室 id（升序）。
	RemoveSessionEverywhere(sessionID uint64) []uint64

	// Lookup 返回聊天室快照并校验成员身份，错误语义同 Leave。
	Lookup(roomID, sessionID uint64) (Room, error)

	Get(roomID uint64) (Room, bool)

	// Snapshot 返回所有聊天室，按 id 升序。
	Snapshot() []Room

	Count() int
}
