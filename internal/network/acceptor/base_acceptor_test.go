package acceptor

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/framer"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// echoHandler 将收到的 sendMessageAll 原样回复给发送者，收到 leaveServer 时结束会话。
type echoHandler struct {
	mu        sync.Mutex
	connected []uint64
	packets   []protocol.Packet
	closed    map[uint64]int
	causes    map[uint64]error
	stages    []network.Stage
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		closed: make(map[uint64]int),
		causes: make(map[uint64]error),
	}
}

func (h *echoHandler) OnConnected(_ context.Context, sess *session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, sess.ID())
}

func (h *echoHandler) OnPacket(_ context.Context, sess *session.Session, pkt protocol.Packet) error {
	h.mu.Lock()
	h.packets = append(h.packets, pkt)
	h.mu.Unlock()

	if pkt.Command == protocol.CommandLeaveServer {
		return network.ErrSessionTerminated
	}
	return sess.Send(protocol.DisplayToUser("echo: " + pkt.Message))
}

func (h *echoHandler) OnSessionClosed(_ context.Context, sess *session.Session, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed[sess.ID()]++
	h.causes[sess.ID()] = cause
}

func (h *echoHandler) OnError(_ *session.Session, stage network.Stage, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage)
}

func (h *echoHandler) connectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connected)
}

func (h *echoHandler) closedCount(id uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed[id]
}

func (h *echoHandler) cause(id uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.causes[id]
}

func (h *echoHandler) hasStage(stage network.Stage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.stages {
		if s == stage {
			return true
		}
	}
	return false
}

type AcceptorSuite struct {
	suite.Suite

	codec    codec.Codec
	sessions *session.BaseSessionManager
	handler  *echoHandler
	acceptor *BaseAcceptor
	cancel   context.CancelFunc
	served   chan error
}

func (s *AcceptorSuite) start(cfg Config) {
	s.codec = codec.Default()
	s.sessions = session.NewBaseSessionManager()
	s.handler = newEchoHandler()

	a, err := NewTCPAcceptor("127.0.0.1:0", s.codec, s.sessions, cfg)
	s.Require().NoError(err)
	s.acceptor = a

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.served = make(chan error, 1)
	go func() { s.served <- a.Serve(ctx, s.handler) }()
}

func (s *AcceptorSuite) TearDownTest() {
	if s.acceptor == nil {
		return
	}
	s.cancel()
	s.sessions.Range(func(sess *session.Session) bool {
		sess.Outbound().Abort(errors.New("test teardown"))
		return true
	})
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("serve did not return")
	}
	s.NoError(s.acceptor.Close())
	s.acceptor = nil
}

func (s *AcceptorSuite) dial() net.Conn {
	conn, err := net.Dial("tcp", s.acceptor.Addr().String())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *AcceptorSuite) roundTrip(conn net.Conn, body string) protocol.Packet {
	s.Require().NoError(s.codec.Encode(conn, protocol.SendMessageAll(body)))
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	pkt, err := s.codec.Decode(conn)
	s.Require().NoError(err)
	return pkt
}

func (s *AcceptorSuite) TestEchoAndCleanupOnEOF() {
	s.start(Config{AcceptPollInterval: 50 * time.Millisecond})
	conn := s.dial()

	s.Equal(protocol.DisplayToUser("echo: hi"), s.roundTrip(conn, "hi"))
	s.Equal(1, s.sessions.Count())

	s.Require().NoError(conn.Close())
	s.Eventually(func() bool { return s.handler.closedCount(1) == 1 }, 5*time.Second, 10*time.Millisecond)
	s.NoError(s.handler.cause(1))
	s.Eventually(func() bool { return s.sessions.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func (s *AcceptorSuite) TestSessionTerminatedClosesConnection() {
	s.start(Config{AcceptPollInterval: 50 * time.Millisecond})
	conn := s.dial()

	s.Require().NoError(s.codec.Encode(conn, protocol.LeaveServer()))
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, err := s.codec.Decode(conn)
	s.Error(err, "server closes the connection after leaveServer")

	s.Eventually(func() bool { return s.handler.closedCount(1) == 1 }, 5*time.Second, 10*time.Millisecond)
	s.NoError(s.handler.cause(1))
}

func (s *AcceptorSuite) TestMalformedPacketKeepsConnection() {
	s.start(Config{AcceptPollInterval: 50 * time.Millisecond})
	conn := s.dial()

	f := framer.NewLengthPrefixedFramer(0)
	s.Require().NoError(f.WriteFrame(conn, 0, []byte{0xff}))

	s.Equal(protocol.DisplayToUser("echo: still here"), s.roundTrip(conn, "still here"))
	s.True(s.handler.hasStage(network.StageDecode))
	s.Zero(s.handler.closedCount(1))
}

func (s *AcceptorSuite) TestOversizedFrameIsConnectionFault() {
	s.start(Config{AcceptPollInterval: 50 * time.Millisecond})
	conn := s.dial()

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], framer.DefaultMaxFrameSize+1)
	_, err := conn.Write(header[:])
	s.Require().NoError(err)

	s.Eventually(func() bool { return s.handler.closedCount(1) == 1 }, 5*time.Second, 10*time.Millisecond)
	s.ErrorIs(s.handler.cause(1), merr.ErrConnectionFault)
	s.True(s.handler.hasStage(network.StageRecv))
}

func (s *AcceptorSuite) TestExcessConnectionsQueue() {
	s.start(Config{MaxWorkers: 1, AcceptPollInterval: 50 * time.Millisecond})

	first := s.dial()
	s.Equal(protocol.DisplayToUser("echo: first"), s.roundTrip(first, "first"))

	second := s.dial()
	s.Require().NoError(s.codec.Encode(second, protocol.SendMessageAll("second")))
	s.Eventually(func() bool { return s.acceptor.Stats().Waiting == 1 }, 5*time.Second, 10*time.Millisecond)
	s.Equal(1, s.handler.connectedCount())

	s.Require().NoError(first.Close())

	s.Require().NoError(second.SetReadDeadline(time.Now().Add(5 * time.Second)))
	pkt, err := s.codec.Decode(second)
	s.Require().NoError(err)
	s.Equal(protocol.DisplayToUser("echo: second"), pkt)
	s.Equal(2, s.handler.connectedCount())
	s.Zero(s.acceptor.Stats().Waiting)
}

func (s *AcceptorSuite) TestServeReturnsOnCancel() {
	s.start(Config{AcceptPollInterval: 20 * time.Millisecond})
	s.cancel()
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("serve did not observe cancellation")
	}
	s.served <- nil
}

func (s *AcceptorSuite) TestServeConnAfterCloseIsUnavailable() {
	s.start(Config{AcceptPollInterval: 20 * time.Millisecond})
	s.cancel()
	s.Require().NoError(<-s.served)
	s.served <- nil
	s.Require().NoError(s.acceptor.Close())

	server, client := net.Pipe()
	defer client.Close()
	err := s.acceptor.ServeConn(context.Background(), server, s.handler)
	s.ErrorIs(err, network.ErrAcceptorClosed)
	s.ErrorIs(err, merr.ErrServiceUnavailable)
	s.True(merr.IsRetryableErr(err))
	s.Zero(s.handler.connectedCount())
}

func TestAcceptor(t *testing.T) {
	suite.Run(t, new(AcceptorSuite))
}

func TestNewTCPAcceptorBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	_, err = NewTCPAcceptor(ln.Addr().String(), codec.Default(), session.NewBaseSessionManager(), Config{})
	if err == nil {
		t.Fatal("expected bind failure")
	}
}
