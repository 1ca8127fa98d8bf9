package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

const (
	defaultMaxWorkers         = 20
	defaultAcceptPollInterval = time.Second
	defaultReleaseTimeout     = 10 * time.Second
)

// Config 描述 Acceptor 的并发与超时配置。
//
// 说明：
//   - MaxWorkers 为同时处理的连接上限，超出的连接排队等待空闲 worker，而不是被拒绝；
//   - AcceptPollInterval 为 Accept 的最长等待时间，超时后重新检查退出信号；
//   - ReadTimeout 为单帧读超时（为 0 表示不设置 deadline）；
//   - Outbound 为每个会话出站通道的配置；
//   - ReleaseTimeout 为 Close 时等待 worker 退出的最长时间。
type Config struct {
	MaxWorkers         int
	AcceptPollInterval time.Duration
	ReadTimeout        time.Duration
	Outbound           session.OutboundConfig
	ReleaseTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.AcceptPollInterval <= 0 {
		c.AcceptPollInterval = defaultAcceptPollInterval
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = defaultReleaseTimeout
	}
	return c
}

// Handler 由上层实现，用于在连接生命周期的各个阶段插入业务逻辑。
//
// 说明：
//   - 同一会话的回调都在该会话的 worker 协程中串行调用；
//   - OnPacket 返回 network.ErrSessionTerminated 时，worker 结束读循环；
//   - OnSessionClosed 对每个会话恰好调用一次，无论连接因何结束。
type Handler interface {
	// OnConnected 在会话注册后、开始读取之前调用。
	OnConnected(ctx context.Context, sess *session.Session)

	// OnPacket 在成功解码出一个数据包后调用。
	OnPacket(ctx context.Context, sess *session.Session, pkt protocol.Packet) error

	// OnSessionClosed 在会话结束时调用，cause 为结束原因，正常断开时为 nil。
	OnSessionClosed(ctx context.Context, sess *session.Session, cause error)

	// OnError 在各阶段发生不终止会话的错误，或终止会话的读错误时调用。
	OnError(sess *session.Session, stage network.Stage, err error)
}

// Stats 为 worker 池的瞬时状态。
type Stats struct {
	Running int
	Waiting int
}

// Acceptor 为服务器侧的连接接入层。
//
// 职责：
//   - 接受连接，并在有界 worker 池中为每个连接注册会话、驱动读循环；
//   - 在会话结束时保证只执行一次清理；
//   - 可接入已建立的字节流（例如 WebSocket），与 TCP 连接共用同一个 worker 池。
type Acceptor interface {
	// Serve 阻塞接受连接，直至 ctx 取消或监听器关闭。
	Serve(ctx context.Context, h Handler) error

	// ServeConn 在 worker 池中处理一个已建立的连接，阻塞直至该会话结束。
	ServeConn(ctx context.Context, conn net.Conn, h Handler) error

	Addr() net.Addr

	Stats() Stats

	// Close 关闭监听器并释放 worker 池。
	Close() error
}
