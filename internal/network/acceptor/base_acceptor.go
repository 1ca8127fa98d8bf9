package acceptor

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/conc"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// BaseAcceptor 是 Acceptor 的 TCP 实现。
//
// 每个连接由 worker 池中的一个 worker 串行处理：注册会话、回调 OnConnected、
// 循环读取数据包并回调 OnPacket，最后在唯一的 defer 中完成清理。
type BaseAcceptor struct {
	log.Binder

	ln       net.Listener
	codec    codec.Codec
	sessions session.SessionManager
	cfg      Config

	pool *conc.Pool[struct{}]

	// baseCtx 为所有会话上下文的根，只在 Close 时取消，
	// 因此停止接受连接后已有会话仍可完成发送。
	baseCtx    context.Context
	baseCancel context.CancelFunc

	queued    atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建接入器。
//
// 参数：
//   - ln ：已创建好的 net.Listener，可为 nil（仅使用 ServeConn）；
//   - c  ：所有连接共用的 Codec；
//   - sm ：会话表，worker 在其中注册与移除会话；
//   - cfg：并发与超时配置，零值字段使用默认值。
func NewBaseAcceptor(ln net.Listener, c codec.Codec, sm session.SessionManager, cfg Config) (*BaseAcceptor, error) {
	if c == nil {
		return nil, merr.WrapErrParameterMissing("codec")
	}
	if sm == nil {
		return nil, merr.WrapErrParameterMissing("session manager")
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	a := &BaseAcceptor{
		ln:         ln,
		codec:      c,
		sessions:   sm,
		cfg:        cfg,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	// 固定大小的 worker 池：一次性分配 MaxWorkers 个 worker，空闲时不回收。
	a.pool = conc.NewPool[struct{}](cfg.MaxWorkers,
		conc.WithPreAlloc(true),
		conc.WithDisablePurge(true),
		conc.WithConcealPanic(true),
		conc.WithPanicHandler(func(x any) {
			a.Logger().Error("connection worker panicked", zap.Any("panic", x))
		}))
	return a, nil
}

// NewTCPAcceptor 在 addr 上监听 TCP 并创建接入器，监听失败直接返回错误。
func NewTCPAcceptor(addr string, c codec.Codec, sm session.SessionManager, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	a, err := NewBaseAcceptor(ln, c, sm, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

func (a *BaseAcceptor) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *BaseAcceptor) Stats() Stats {
	return Stats{
		Running: a.pool.Running(),
		Waiting: int(a.queued.Load()),
	}
}

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// Serve 实现 Acceptor.Serve。
//
// Accept 最多等待 AcceptPollInterval，超时后检查 ctx，ctx 取消后返回 nil。
// 已接受的连接交给 worker 池，池满时排队。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler")
	}
	if a.ln == nil {
		return merr.WrapErrParameterMissing("listener")
	}
	defer a.wg.Wait()

	dl, canPoll := a.ln.(deadlineListener)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if canPoll {
			if err := dl.SetDeadline(time.Now().Add(a.cfg.AcceptPollInterval)); err != nil && !a.closed.Load() {
				return errors.Wrap(err, "set accept deadline")
			}
		}

		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if a.closed.Load() || errors.Is(err, net.ErrClosed) {
				return network.ErrAcceptorClosed
			}
			h.OnError(nil, network.StageAccept, err)
			return errors.Wrap(err, "accept")
		}

		metrics.ConnectionsAccepted.Inc()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.ServeConn(ctx, conn, h); err != nil {
				a.Logger().Debug("connection not served", zap.Error(err))
			}
		}()
	}
}

// ServeConn 实现 Acceptor.ServeConn。
//
// 连接在等待 worker 期间若 ctx 已取消，直接关闭而不注册会话。
func (a *BaseAcceptor) ServeConn(ctx context.Context, conn net.Conn, h Handler) error {
	if a.closed.Load() {
		_ = conn.Close()
		return network.ErrAcceptorClosed
	}

	a.setQueued(a.queued.Inc())
	started := false
	future := a.pool.Submit(func() (struct{}, error) {
		started = true
		a.setQueued(a.queued.Dec())
		if ctx.Err() != nil {
			_ = conn.Close()
			return struct{}{}, ctx.Err()
		}
		a.handleConnection(conn, h)
		return struct{}{}, nil
	})
	_, err := future.Await()
	if !started {
		a.setQueued(a.queued.Dec())
		_ = conn.Close()
	}
	return err
}

func (a *BaseAcceptor) setQueued(n int64) {
	metrics.WorkersWaiting.Set(float64(n))
}

// handleConnection 处理单个连接的完整生命周期。
//
// 流程：
//  1. 创建出站通道并在会话表中注册 Connecting 会话；
//  2. 回调 OnConnected；
//  3. 循环读取数据包并回调 OnPacket；
//  4. 唯一的 defer 中回调 OnSessionClosed，从会话表移除，并在发送完排队数据后关闭连接。
func (a *BaseAcceptor) handleConnection(conn net.Conn, h Handler) {
	out := session.NewConnOutbound(conn, a.codec, a.cfg.Outbound)
	sess := a.sessions.Register(out, conn.RemoteAddr())
	out.SetLogger(log.With(log.FieldSessionID(sess.ID())))
	ctx := log.WithSession(a.baseCtx, sess.ID(), sess.RemoteString())

	var cause error
	defer func() {
		if cause == nil {
			// 本端因写失败或队列溢出中止连接时，以中止原因作为会话结束原因。
			cause = out.Err()
		}
		h.OnSessionClosed(ctx, sess, cause)
		a.sessions.Remove(sess.ID())
		if err := out.Close(); err != nil {
			log.Ctx(ctx).Debug("close connection failed", zap.Error(err))
		}
	}()

	h.OnConnected(ctx, sess)
	cause = a.readLoop(ctx, sess, conn, h)
}

// readLoop 读取并分发数据包，直至连接结束。
//
// 返回值：
//   - nil：对端正常关闭、连接被本端关闭，或处理器要求结束会话；
//   - merr.ErrConnectionFault：读取失败或帧不合法，流已不同步。
func (a *BaseAcceptor) readLoop(ctx context.Context, sess *session.Session, conn net.Conn, h Handler) error {
	for {
		if a.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout)); err != nil {
				return merr.WrapErrConnectionFault(err, "set read deadline")
			}
		}

		pkt, err := a.codec.Decode(conn)
		if err != nil {
			switch {
			case errors.Is(err, merr.ErrMalformedCommand):
				metrics.PacketsDropped.WithLabelValues(metrics.DropReasonMalformed).Inc()
				h.OnError(sess, network.StageDecode, err)
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return nil
			default:
				metrics.ConnectionFaults.Inc()
				fault := merr.WrapErrConnectionFault(err, "read packet")
				h.OnError(sess, network.StageRecv, fault)
				return fault
			}
		}

		if err := h.OnPacket(ctx, sess, pkt); err != nil {
			if errors.Is(err, network.ErrSessionTerminated) {
				return nil
			}
			h.OnError(sess, network.StageDispatch, err)
		}
	}
}

// Close 实现 Acceptor.Close。
//
// 关闭监听器后，排队中的连接被丢弃；运行中的 worker 最多等待 ReleaseTimeout。
// 仍未结束的会话由调用方通过会话表中止。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		if a.ln != nil {
			if cerr := a.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		if rerr := a.pool.ReleaseTimeout(a.cfg.ReleaseTimeout); rerr != nil {
			err = merr.Combine(err, errors.Wrap(rerr, "release worker pool"))
		}
		a.baseCancel()
	})
	return err
}
