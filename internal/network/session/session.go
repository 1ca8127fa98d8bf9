package session

import (
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

// State 为会话的生命周期状态。
//
//	Connecting --joinServer--> Active --断开/leaveServer--> Terminated
//	Connecting --断开-------------------------------------> Terminated
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// Outbound 为会话唯一的出站通道。
//
// 约定：
//   - Send 不阻塞调用方，可被多个 goroutine 并发调用；同一调用方的数据包保持顺序；
//   - Send 失败返回 network.ErrSendFailed，并可能已经中止了该连接；
//   - Close 尽量发送完已排队的数据包后关闭连接，可重复调用；
//   - Abort 立即关闭连接，用于发送失败或强制下线。
type Outbound interface {
	Send(pkt protocol.Packet) error
	Close() error
	Abort(cause error)
}

// Session 为会话表中的一条记录：id、显示名、状态和出站通道。
//
// id 由 SessionManager 分配，之后不再变化；名字和状态只能通过 SessionManager 修改。
type Session struct {
	id        uint64
	name      atomic.String
	state     atomic.Int32
	remote    net.Addr
	out       Outbound
	createdAt time.Time
}

func newSession(id uint64, out Outbound, remote net.Addr) *Session {
	return &Session{
		id:        id,
		remote:    remote,
		out:       out,
		createdAt: time.Now(),
	}
}

func (s *Session) ID() uint64 {
	return s.id
}

// Name 返回显示名，加入服务器之前为空串。
func (s *Session) Name() string {
	return s.name.Load()
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// RemoteAddr 返回对端地址，可能为 nil。
func (s *Session) RemoteAddr() net.Addr {
	return s.remote
}

// RemoteString 返回对端地址的字符串形式，用于日志。
func (s *Session) RemoteString() string {
	if s.remote == nil {
		return ""
	}
	return s.remote.String()
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Outbound 返回会话的出站通道。
func (s *Session) Outbound() Outbound {
	return s.out
}

// Send 通过出站通道发送数据包。
func (s *Session) Send(pkt protocol.Packet) error {
	if s.out == nil {
		return errors.Newf("session %d has no outbound", s.id)
	}
	if err := s.out.Send(pkt); err != nil {
		return errors.Wrapf(err, "send %s to session %d", pkt.Command, s.id)
	}
	return nil
}

// activate 设置显示名并从 Connecting 切换到 Active，仅在 Connecting 状态下成功。
func (s *Session) activate(name string) bool {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return false
	}
	s.name.Store(name)
	return true
}

func (s *Session) terminate() {
	s.state.Store(int32(StateTerminated))
}
