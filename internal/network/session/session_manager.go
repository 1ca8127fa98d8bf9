package session

import (
	"net"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

// SessionManager 为会话注册表，维护所有在线会话。
//
// 职责：
//   - 分配严格递增、永不复用的会话 id（从 1 开始），分配与插入在同一临界区内完成；
//   - 只负责索引与广播，不创建也不关闭底层连接；
//   - 所有读操作基于快照，回调与发送都在锁外执行。
type SessionManager interface {
	// Register 以 Connecting 状态插入一个新会话并返回。
	Register(out Outbound, remote net.Addr) *Session

	// SetName 设置显示名并将会话切换为 Active。
	// 会话不存在或不处于 Connecting 状态时返回 false。
	SetName(id uint64, name string) bool

	Get(id uint64) (*Session, bool)

	// Remove 移除会话并标记为 Terminated，重复调用返回 false。
	Remove(id uint64) (*Session, bool)

	// All 返回按 id 升序排列的会话快照。
	All() []*Session

	// Range 遍历会话快照，fn 返回 false 时停止。
	Range(fn func(sess *Session) bool)

	Count() int

	// Broadcast 向快照中的每个会话发送数据包。
	// 单个会话失败不影响其他会话，所有失败合并后返回。
	Broadcast(pkt protocol.Packet) error
}
