// Package client 实现聊天客户端：解析用户输入并发送命令，把服务器推送转交给 View。
package client

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network/connector"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const shutdownText = "System: Server is shutting down."

// Client 为一条到中继服务器的客户端连接。
type Client struct {
	log.Binder

	conn *connector.ClientConn
	view View

	id       atomic.Uint64
	shutdown atomic.Bool

	joinedOnce sync.Once
	joined     chan struct{}
}

// Dial 连接服务器，cfg 中的编解码配置需与服务器一致。
func Dial(ctx context.Context, addr string, view View, cfg connector.Config) (*Client, error) {
	if view == nil {
		return nil, merr.WrapErrParameterMissing("view")
	}
	c := &Client{
		view:   view,
		joined: make(chan struct{}),
	}
	c.SetLogger(log.With(log.FieldComponent("client"), log.FieldRemote(addr)))
	conn, err := connector.Dial(ctx, addr, c, cfg)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Join 以 name 加入服务器。
func (c *Client) Join(name string) error {
	return c.send(protocol.JoinServer(name))
}

// WaitJoined 等待服务器确认加入，返回分配的用户 id。
func (c *Client) WaitJoined(ctx context.Context) (uint64, error) {
	select {
	case <-c.joined:
		return c.id.Load(), nil
	case <-c.conn.Done():
		return 0, errors.Wrap(merr.Combine(c.conn.Err(), merr.ErrServiceStopped), "connection closed before join")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ID 返回服务器分配的用户 id，加入前为 0。
func (c *Client) ID() uint64 {
	return c.id.Load()
}

// Input 处理一行用户输入。输入错误只展示给用户，不返回错误；发送失败时返回错误。
func (c *Client) Input(line string) error {
	pkt, err := ParseInput(line)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			c.view.Display(inputErr.Text)
		}
		return nil
	}
	return c.send(pkt)
}

// Leave 通知服务器离开，发送完排队数据后关闭连接并等待读循环退出。
func (c *Client) Leave() error {
	c.shutdown.Store(true)
	err := c.conn.Send(protocol.LeaveServer())
	return merr.Combine(err, c.conn.Close())
}

// Shutdown 报告客户端是否已进入关闭流程（主动离开或收到服务器 shutdown）。
func (c *Client) Shutdown() bool {
	return c.shutdown.Load()
}

// Done 在连接结束后关闭。
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

func (c *Client) send(pkt protocol.Packet) error {
	if c.shutdown.Load() {
		return errors.Wrapf(merr.ErrServiceStopped, "send %s", pkt.Command)
	}
	return c.conn.Send(pkt)
}

// OnPacket 实现 connector.Handler。
func (c *Client) OnPacket(conn *connector.ClientConn, pkt protocol.Packet) {
	switch pkt.Command {
	case protocol.CommandJoinServer:
		if pkt.TargetID > 0 {
			c.id.Store(uint64(pkt.TargetID))
		}
		c.view.Joined(c.id.Load(), pkt.Message)
		c.joinedOnce.Do(func() { close(c.joined) })
	case protocol.CommandUserUpdate:
		c.view.Users(pkt.Message)
	case protocol.CommandRoomUpdate:
		c.view.Rooms(pkt.Message)
	case protocol.CommandDisplayToUser:
		c.view.Display(pkt.Message)
	case protocol.CommandShutdown:
		c.shutdown.Store(true)
		c.view.Display(shutdownText)
		// 在读协程中关闭会等待自身退出，因此异步关闭。
		go func() {
			if err := conn.Close(); err != nil {
				c.Logger().Debug("close after shutdown failed", zap.Error(err))
			}
		}()
	default:
		c.Logger().Debug("ignore unexpected packet", log.FieldCommand(pkt.Command))
	}
}

// OnClosed 实现 connector.Handler。
func (c *Client) OnClosed(_ *connector.ClientConn, err error) {
	c.shutdown.Store(true)
	c.view.Closed(err)
}
