// Package connector 提供客户端侧的 TCP 连接：发送队列与读循环，
// 帧格式与服务器侧的 acceptor 完全一致。
package connector

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/conc"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const defaultDialTimeout = 5 * time.Second

// Config 描述客户端连接的配置。
type Config struct {
	// Codec 为连接使用的编解码器，为 nil 时使用 codec.Default()。
	Codec codec.Codec

	DialTimeout time.Duration
	// ReadTimeout 为单帧读超时，0 表示不设置。
	ReadTimeout time.Duration

	Outbound session.OutboundConfig
}

// Handler 接收连接上的事件，回调都在读协程中串行执行。
type Handler interface {
	// OnPacket 在解码出一个数据包后调用。
	OnPacket(conn *ClientConn, pkt protocol.Packet)

	// OnClosed 在读循环结束后调用一次，对端正常关闭时 err 为 nil。
	OnClosed(conn *ClientConn, err error)
}

// ClientConn 为客户端到服务器的一条连接。
//
// 发送复用 session.ConnOutbound：不阻塞、保序、由单个协程写入。
type ClientConn struct {
	conn  net.Conn
	codec codec.Codec
	cfg   Config
	out   *session.ConnOutbound
	h     Handler

	readDone *conc.Future[struct{}]

	mu  sync.Mutex
	err error
}

// Dial 连接服务器并启动读循环。
func Dial(ctx context.Context, addr string, h Handler, cfg Config) (*ClientConn, error) {
	if h == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return newClientConn(conn, h, cfg), nil
}

func newClientConn(conn net.Conn, h Handler, cfg Config) *ClientConn {
	c := &ClientConn{
		conn:  conn,
		codec: cfg.Codec,
		cfg:   cfg,
		out:   session.NewConnOutbound(conn, cfg.Codec, cfg.Outbound),
		h:     h,
	}
	c.out.SetLogger(log.With(log.FieldComponent("connector"), log.FieldRemote(conn.RemoteAddr().String())))
	c.readDone = conc.Go(func() (struct{}, error) {
		err := c.readLoop()
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.out.Abort(errors.New("read loop exited"))
		c.h.OnClosed(c, err)
		return struct{}{}, err
	})
	return c
}

func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send 将数据包放入发送队列。
func (c *ClientConn) Send(pkt protocol.Packet) error {
	return c.out.Send(pkt)
}

// Close 发送完已排队的数据包后关闭连接，并等待读循环退出。
func (c *ClientConn) Close() error {
	err := c.out.Close()
	<-c.readDone.Inner()
	return err
}

// Done 在读循环退出后关闭。
func (c *ClientConn) Done() <-chan struct{} {
	return c.readDone.Inner()
}

// Err 返回读循环的结束原因。
func (c *ClientConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ClientConn) readLoop() error {
	for {
		if c.cfg.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				return merr.WrapErrConnectionFault(err, "set read deadline")
			}
		}
		pkt, err := c.codec.Decode(c.conn)
		if err != nil {
			switch {
			case errors.Is(err, merr.ErrMalformedCommand):
				log.Warn("drop malformed packet from server", zap.Error(err))
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return nil
			default:
				return merr.WrapErrConnectionFault(err, "read packet")
			}
		}
		c.h.OnPacket(c, pkt)
	}
}
