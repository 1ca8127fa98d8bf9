package connector

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

type recordingHandler struct {
	mu      sync.Mutex
	packets []protocol.Packet
	closed  chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan error, 1)}
}

func (h *recordingHandler) OnPacket(_ *ClientConn, pkt protocol.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, pkt)
}

func (h *recordingHandler) OnClosed(_ *ClientConn, err error) {
	h.closed <- err
}

func (h *recordingHandler) received() []protocol.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Packet(nil), h.packets...)
}

func TestDialSendReceive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := codec.Default()
	serverGot := make(chan protocol.Packet, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		pkt, err := c.Decode(conn)
		if err != nil {
			return
		}
		serverGot <- pkt
		_ = c.Encode(conn, protocol.JoinAck(1, "welcome"))
		_ = c.Encode(conn, protocol.Shutdown())
	}()

	h := newRecordingHandler()
	cc, err := Dial(context.Background(), ln.Addr().String(), h, Config{})
	require.NoError(t, err)

	require.NoError(t, cc.Send(protocol.JoinServer("alice")))
	select {
	case pkt := <-serverGot:
		assert.Equal(t, protocol.JoinServer("alice"), pkt)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive packet")
	}

	select {
	case err := <-h.closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit after server closed")
	}
	assert.Equal(t, []protocol.Packet{protocol.JoinAck(1, "welcome"), protocol.Shutdown()}, h.received())
	assert.NoError(t, cc.Err())
	assert.NoError(t, cc.Close())
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, newRecordingHandler(), Config{DialTimeout: time.Second})
	assert.Error(t, err)
}
