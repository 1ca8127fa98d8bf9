package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// recordingOutbound 记录发送的数据包，fail 为 true 时所有发送失败。
type recordingOutbound struct {
	mu      sync.Mutex
	packets []protocol.Packet
	fail    bool
	closed  bool
	aborted error
}

func (o *recordingOutbound) Send(pkt protocol.Packet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail || o.closed {
		return errors.Wrap(network.ErrSendFailed, "recording outbound")
	}
	o.packets = append(o.packets, pkt)
	return nil
}

func (o *recordingOutbound) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *recordingOutbound) Abort(cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.aborted = cause
}

func (o *recordingOutbound) Packets() []protocol.Packet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]protocol.Packet(nil), o.packets...)
}

type SessionManagerSuite struct {
	suite.Suite
	mgr *BaseSessionManager
}

func (s *SessionManagerSuite) SetupTest() {
	s.mgr = NewBaseSessionManager()
}

func (s *SessionManagerSuite) TestRegisterAssignsIncreasingIDs() {
	first := s.mgr.Register(&recordingOutbound{}, nil)
	second := s.mgr.Register(&recordingOutbound{}, nil)

	s.EqualValues(1, first.ID())
	s.EqualValues(2, second.ID())
	s.Equal(StateConnecting, first.State())
	s.Empty(first.Name())
	s.Equal(2, s.mgr.Count())

	s.mgr.Remove(second.ID())
	third := s.mgr.Register(&recordingOutbound{}, nil)
	s.EqualValues(3, third.ID(), "ids are never reused")
}

func (s *SessionManagerSuite) TestConcurrentRegisterUniqueIDs() {
	const n = 200
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.mgr.Register(&recordingOutbound{}, nil).ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]struct{}, n)
	for id := range ids {
		s.GreaterOrEqual(id, uint64(1))
		s.LessOrEqual(id, uint64(n))
		seen[id] = struct{}{}
	}
	s.Len(seen, n)

	all := s.mgr.All()
	s.Require().Len(all, n)
	for i, sess := range all {
		s.EqualValues(i+1, sess.ID())
	}
}

func (s *SessionManagerSuite) TestSetName() {
	sess := s.mgr.Register(&recordingOutbound{}, nil)

	s.True(s.mgr.SetName(sess.ID(), "alice"))
	s.Equal("alice", sess.Name())
	s.Equal(StateActive, sess.State())

	// 只允许加入一次
	s.False(s.mgr.SetName(sess.ID(), "bob"))
	s.Equal("alice", sess.Name())

	s.False(s.mgr.SetName(42, "ghost"))
}

func (s *SessionManagerSuite) TestRemoveIsIdempotent() {
	sess := s.mgr.Register(&recordingOutbound{}, nil)

	removed, ok := s.mgr.Remove(sess.ID())
	s.True(ok)
	s.Same(sess, removed)
	s.Equal(StateTerminated, sess.State())

	_, ok = s.mgr.Remove(sess.ID())
	s.False(ok)
	_, ok = s.mgr.Get(sess.ID())
	s.False(ok)
	s.Zero(s.mgr.Count())

	// 已终止的会话不能再加入
	s.False(sess.activate("late"))
}

func (s *SessionManagerSuite) TestBroadcastContinuesPastFailures() {
	good1 := &recordingOutbound{}
	bad := &recordingOutbound{fail: true}
	good2 := &recordingOutbound{}
	s.mgr.Register(good1, nil)
	s.mgr.Register(bad, nil)
	s.mgr.Register(good2, nil)

	pkt := protocol.DisplayToUser("hello")
	err := s.mgr.Broadcast(pkt)
	s.Error(err)
	s.ErrorIs(err, network.ErrSendFailed)

	s.Equal([]protocol.Packet{pkt}, good1.Packets())
	s.Equal([]protocol.Packet{pkt}, good2.Packets())
	s.Empty(bad.Packets())
}

func (s *SessionManagerSuite) TestRangeStops() {
	for i := 0; i < 5; i++ {
		s.mgr.Register(&recordingOutbound{}, nil)
	}
	var visited []uint64
	s.mgr.Range(func(sess *Session) bool {
		visited = append(visited, sess.ID())
		return len(visited) < 3
	})
	s.Equal([]uint64{1, 2, 3}, visited)
}

func TestSessionManager(t *testing.T) {
	suite.Run(t, new(SessionManagerSuite))
}

func TestSessionSendWithoutOutbound(t *testing.T) {
	sess := newSession(7, nil, nil)
	assert.Error(t, sess.Send(protocol.Shutdown()))
	assert.Equal(t, "", sess.RemoteString())
}

func readPackets(t *testing.T, conn net.Conn, n int) []protocol.Packet {
	t.Helper()
	c := codec.Default()
	out := make([]protocol.Packet, 0, n)
	for i := 0; i < n; i++ {
		pkt, err := c.Decode(conn)
		require.NoError(t, err)
		out = append(out, pkt)
	}
	return out
}

func TestConnOutboundPreservesOrder(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	out := NewConnOutbound(server, codec.Default(), OutboundConfig{QueueSize: 16, WriteTimeout: time.Second})
	defer out.Close()

	want := []protocol.Packet{
		protocol.DisplayToUser("one"),
		protocol.DisplayToUser("two"),
		protocol.UserUpdate("1 USERS\n"),
	}
	for _, pkt := range want {
		require.NoError(t, out.Send(pkt))
	}
	assert.Equal(t, want, readPackets(t, client, len(want)))
}

func TestConnOutboundCloseFlushes(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	out := NewConnOutbound(server, codec.Default(), OutboundConfig{QueueSize: 16, DrainTimeout: 5 * time.Second})
	for i := 0; i < 3; i++ {
		require.NoError(t, out.Send(protocol.DisplayToUser("bye")))
	}
	require.NoError(t, out.Send(protocol.Shutdown()))

	closed := make(chan error, 1)
	go func() { closed <- out.Close() }()

	got := readPackets(t, client, 4)
	assert.Equal(t, protocol.Shutdown(), got[3])

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}

	err := out.Send(protocol.DisplayToUser("late"))
	assert.ErrorIs(t, err, network.ErrSendFailed)
	assert.NoError(t, out.Close())
}

func TestConnOutboundQueueFullAborts(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	// 对端不读取，发送协程阻塞在第一次写入上
	out := NewConnOutbound(server, codec.Default(), OutboundConfig{QueueSize: 1})

	var sendErr error
	for i := 0; i < 10 && sendErr == nil; i++ {
		sendErr = out.Send(protocol.DisplayToUser("flood"))
	}
	require.Error(t, sendErr)
	assert.ErrorIs(t, sendErr, network.ErrSendFailed)

	select {
	case <-out.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("send loop still running after abort")
	}

	assert.ErrorIs(t, out.Send(protocol.DisplayToUser("after")), network.ErrSendFailed)
	assert.Error(t, out.Err())
	assert.NotErrorIs(t, out.Err(), merr.ErrIoFailed)

	_, err := codec.Default().Decode(client)
	assert.Error(t, err)
}

func TestConnOutboundWriteFailureIsIoFailed(t *testing.T) {
	server, client := net.Pipe()
	require.NoError(t, client.Close())

	out := NewConnOutbound(server, codec.Default(), OutboundConfig{QueueSize: 4, WriteTimeout: time.Second})
	assert.NoError(t, out.Err())
	require.NoError(t, out.Send(protocol.DisplayToUser("lost")))

	select {
	case <-out.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("send loop still running after write failure")
	}
	assert.ErrorIs(t, out.Err(), merr.ErrIoFailed)
	assert.ErrorIs(t, out.Send(protocol.DisplayToUser("after")), network.ErrSendFailed)
}
