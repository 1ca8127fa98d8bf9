package wsbridge

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/acceptor"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

type upperHandler struct{}

func (upperHandler) OnConnected(context.Context, *session.Session) {}

func (upperHandler) OnPacket(_ context.Context, sess *session.Session, pkt protocol.Packet) error {
	return sess.Send(protocol.DisplayToUser(strings.ToUpper(pkt.Message)))
}

func (upperHandler) OnSessionClosed(context.Context, *session.Session, error) {}

func (upperHandler) OnError(*session.Session, network.Stage, error) {}

func TestWebSocketBridge(t *testing.T) {
	c := codec.Default()
	sessions := session.NewBaseSessionManager()
	a, err := acceptor.NewBaseAcceptor(nil, c, sessions, acceptor.Config{MaxWorkers: 2})
	require.NoError(t, err)
	defer a.Close()

	srv := httptest.NewServer(NewServeMux(NewHandler(a, upperHandler{}, Config{})))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+DefaultPath, nil)
	require.NoError(t, err)
	conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)
	defer conn.Close()

	require.NoError(t, c.Encode(conn, protocol.SendMessageAll("hello over ws")))
	pkt, err := c.Decode(conn)
	require.NoError(t, err)
	assert.Equal(t, protocol.DisplayToUser("HELLO OVER WS"), pkt)
	assert.Equal(t, 1, sessions.Count())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return sessions.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
