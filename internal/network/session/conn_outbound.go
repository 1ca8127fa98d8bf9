package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const (
	defaultSendQueueSize = 1024
	defaultDrainTimeout  = 5 * time.Second
)

// OutboundConfig 为连接出站通道的参数。
type OutboundConfig struct {
	// QueueSize 为发送队列容量，队列满时该连接被视为过慢并被中止。
	QueueSize int
	// WriteTimeout 为单帧写超时，0 表示不设置。
	WriteTimeout time.Duration
	// DrainTimeout 为 Close 时等待队列发送完毕的最长时间。
	DrainTimeout time.Duration
}

func (c OutboundConfig) withDefaults() OutboundConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultSendQueueSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return c
}

// ConnOutbound 是基于 net.Conn 的 Outbound 实现。
//
// Send 只把数据包放入发送队列，由唯一的发送协程编码并写入连接，
// 因此多个 goroutine 同时发送也不会产生交叉的帧。
type ConnOutbound struct {
	log.Binder

	conn  net.Conn
	codec codec.Codec
	cfg   OutboundConfig

	ctx    context.Context
	cancel context.CancelFunc

	// mu 保护 closed 与 queue 的关闭，Send 持读锁投递。
	mu     sync.RWMutex
	closed bool
	queue  chan protocol.Packet
	done   chan struct{}

	closeOnce sync.Once
	abortOnce sync.Once
	closeErr  error
	abortErr  error
}

var _ Outbound = (*ConnOutbound)(nil)

// NewConnOutbound 创建出站通道并启动发送协程。
func NewConnOutbound(conn net.Conn, c codec.Codec, cfg OutboundConfig) *ConnOutbound {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &ConnOutbound{
		conn:   conn,
		codec:  c,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan protocol.Packet, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go o.sendLoop()
	return o
}

// Done 在发送协程退出后关闭。
func (o *ConnOutbound) Done() <-chan struct{} {
	return o.done
}

func (o *ConnOutbound) Send(pkt protocol.Packet) error {
	o.mu.RLock()
	if o.closed || o.ctx.Err() != nil {
		o.mu.RUnlock()
		metrics.PacketsDropped.WithLabelValues(metrics.DropReasonClosed).Inc()
		return errors.Wrap(network.ErrSendFailed, "outbound closed")
	}
	select {
	case o.queue <- pkt:
		o.mu.RUnlock()
		return nil
	default:
	}
	o.mu.RUnlock()

	metrics.PacketsDropped.WithLabelValues(metrics.DropReasonQueueFull).Inc()
	o.Abort(errors.Newf("send queue full (%d)", o.cfg.QueueSize))
	return errors.Wrap(network.ErrSendFailed, "send queue full")
}

// Close 停止接收新的数据包，在 DrainTimeout 内发送完已排队的数据包，然后关闭连接。
func (o *ConnOutbound) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()

		timer := time.NewTimer(o.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-o.done:
		case <-timer.C:
			o.Logger().Warn("outbound drain timed out", zap.Duration("timeout", o.cfg.DrainTimeout))
		}

		o.cancel()
		if err := o.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			o.closeErr = err
		}
	})
	return o.closeErr
}

// Abort 立即关闭连接，正在进行的读写会返回错误。
func (o *ConnOutbound) Abort(cause error) {
	o.abortOnce.Do(func() {
		o.mu.Lock()
		o.abortErr = cause
		o.mu.Unlock()
		o.Logger().Debug("outbound aborted", zap.Error(cause))
		o.cancel()
		_ = o.conn.Close()
	})
}

// Err 返回出站通道被中止的原因：写失败时为 merr.ErrIoFailed，队列溢出时为溢出错误；
// 未被中止时返回 nil。
func (o *ConnOutbound) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.abortErr
}

func (o *ConnOutbound) sendLoop() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			return
		case pkt, ok := <-o.queue:
			if !ok {
				return
			}
			if err := o.write(pkt); err != nil {
				o.Abort(err)
				return
			}
		}
	}
}

func (o *ConnOutbound) write(pkt protocol.Packet) error {
	if o.cfg.WriteTimeout > 0 {
		if err := o.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout)); err != nil {
			return merr.WrapErrIoFailed("set write deadline", err)
		}
	}
	if err := o.codec.Encode(o.conn, pkt); err != nil {
		return merr.WrapErrIoFailed("write "+pkt.Command.String(), err)
	}
	metrics.PacketsSent.Inc()
	return nil
}
