package server

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/chat"
	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/acceptor"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// relayHandler 将 acceptor 的连接事件转交给 chat.Dispatcher。
type relayHandler struct {
	dispatcher *chat.Dispatcher
}

var _ acceptor.Handler = (*relayHandler)(nil)

func (h *relayHandler) OnConnected(ctx context.Context, sess *session.Session) {
	h.dispatcher.Connected(ctx, sess)
}

func (h *relayHandler) OnPacket(ctx context.Context, sess *session.Session, pkt protocol.Packet) error {
	return h.dispatcher.Dispatch(ctx, sess.ID(), pkt)
}

func (h *relayHandler) OnSessionClosed(ctx context.Context, sess *session.Session, cause error) {
	h.dispatcher.Disconnect(ctx, sess.ID(), cause)
}

// OnError 按错误类别选择日志级别，客户端输入类错误使用限速日志。
func (h *relayHandler) OnError(sess *session.Session, stage network.Stage, err error) {
	fields := []zap.Field{zap.String("stage", string(stage)), zap.Int32("code", merr.Code(err)), zap.Error(err)}
	if sess != nil {
		fields = append(fields, log.FieldSessionID(sess.ID()), log.FieldRemote(sess.RemoteString()))
	}

	switch {
	case merr.IsBusinessErr(err):
		log.Debug("command rejected", fields...)
	case merr.GetErrorType(err) == merr.InputError:
		// 格式错误与越权命令
		log.RatedWarn(1, "packet dropped", fields...)
	case errors.Is(err, merr.ErrConnectionFault):
		log.Info("connection fault", fields...)
	default:
		log.Warn("connection error", fields...)
	}
}
