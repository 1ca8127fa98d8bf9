// Package wsbridge 将 WebSocket 连接接入 acceptor：每个 WebSocket 连接被视为一条二进制字节流，
// 承载与 TCP 完全相同的帧，共用同一个会话表与 worker 池。
package wsbridge

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/network/acceptor"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

const DefaultPath = "/ws"

// ConnServer 为可以处理已建立连接的接入器，acceptor.BaseAcceptor 满足该接口。
type ConnServer interface {
	ServeConn(ctx context.Context, conn net.Conn, h acceptor.Handler) error
}

// Config 为 WebSocket 接入配置。
type Config struct {
	// ReadLimit 为单条 WebSocket 消息的最大字节数，应不小于最大帧大小加帧头。
	ReadLimit int64
	// OriginPatterns 为允许跨域的 Origin 模式，为空时只允许同源。
	OriginPatterns []string
}

// Handler 为 WebSocket 升级入口。
type Handler struct {
	log.Binder

	server  ConnServer
	handler acceptor.Handler
	cfg     Config
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(server ConnServer, h acceptor.Handler, cfg Config) *Handler {
	return &Handler{
		server:  server,
		handler: h,
		cfg:     cfg,
	}
}

// ServeHTTP 完成升级后阻塞，直至会话结束。
func (b *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.cfg.OriginPatterns,
	})
	if err != nil {
		b.Logger().Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if b.cfg.ReadLimit > 0 {
		c.SetReadLimit(b.cfg.ReadLimit)
	}

	ctx := r.Context()
	conn := websocket.NetConn(ctx, c, websocket.MessageBinary)
	if err := b.server.ServeConn(ctx, conn, b.handler); err != nil {
		b.Logger().Debug("websocket session not served", zap.String("remote", r.RemoteAddr), zap.Error(err))
	}
}

// NewServeMux 返回在 DefaultPath 上挂载了 h 的 ServeMux。
func NewServeMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, h)
	return mux
}
