package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

type RoomManagerSuite struct {
	suite.Suite
	mgr *BaseRoomManager
}

func (s *RoomManagerSuite) SetupTest() {
	s.mgr = NewBaseRoomManager()
}

func (s *RoomManagerSuite) TestCreateSequentialIDs() {
	first := s.mgr.Create(1, "lobby")
	second := s.mgr.Create(2, "lobby")

	s.EqualValues(1, first)
	s.EqualValues(2, second)

	r, ok := s.mgr.Get(first)
	s.Require().True(ok)
	s.Equal("lobby", r.Name)
	s.EqualValues(1, r.Creator)
	s.Equal([]uint64{1}, r.Members)
}

func (s *RoomManagerSuite) TestJoin() {
	id := s.mgr.Create(1, "go")

	r, err := s.mgr.Join(id, 2)
	s.NoError(err)
	s.Equal([]uint64{1, 2}, r.Members)
	s.True(r.HasMember(2))

	_, err = s.mgr.Join(id, 2)
	s.ErrorIs(err, merr.ErrAlreadyMember)

	_, err = s.mgr.Join(99, 2)
	s.ErrorIs(err, merr.ErrRoomNotFound)
}

func (s *RoomManagerSuite) TestLeaveLastMemberDeletesRoom() {
	id := s.mgr.Create(1, "solo")
	s.Equal(1, s.mgr.Count())

	r, err := s.mgr.Leave(id, 1)
	s.NoError(err)
	s.Equal("solo", r.Name)
	s.Empty(r.Members)

	_, ok := s.mgr.Get(id)
	s.False(ok)
	s.Zero(s.mgr.Count())

	// id 不复用
	s.EqualValues(2, s.mgr.Create(3, "next"))
}

func (s *RoomManagerSuite) TestLeaveErrors() {
	id := s.mgr.Create(1, "a")

	r, err := s.mgr.Leave(id, 2)
	s.ErrorIs(err, merr.ErrNotMember)
	s.Equal("a", r.Name)

	_, err = s.mgr.Leave(42, 1)
	s.ErrorIs(err, merr.ErrRoomNotFound)
}

func (s *RoomManagerSuite) TestLookup() {
	id := s.mgr.Create(1, "a")

	r, err := s.mgr.Lookup(id, 1)
	s.NoError(err)
	s.Equal(id, r.ID)

	r, err = s.mgr.Lookup(id, 2)
	s.ErrorIs(err, merr.ErrNotMember)
	s.Equal("a", r.Name)

	_, err = s.mgr.Lookup(7, 1)
	s.ErrorIs(err, merr.ErrRoomNotFound)
}

func (s *RoomManagerSuite) TestRemoveSessionEverywhere() {
	shared := s.mgr.Create(1, "shared")
	own := s.mgr.Create(2, "own")
	other := s.mgr.Create(3, "other")
	_, err := s.mgr.Join(shared, 2)
	s.Require().NoError(err)

	affected := s.mgr.RemoveSessionEverywhere(2)
	s.Equal([]uint64{shared, own}, affected)

	r, ok := s.mgr.Get(shared)
	s.Require().True(ok)
	s.Equal([]uint64{1}, r.Members)

	_, ok = s.mgr.Get(own)
	s.False(ok, "room emptied by removal is deleted")
	_, ok = s.mgr.Get(other)
	s.True(ok)

	s.Empty(s.mgr.RemoveSessionEverywhere(2))
}

func (s *RoomManagerSuite) TestConcurrentJoins() {
	const n = 100
	id := s.mgr.Create(1000, "crowd")

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(sid uint64) {
			defer wg.Done()
			_, err := s.mgr.Join(id, sid)
			s.NoError(err)
		}(uint64(i))
	}
	wg.Wait()

	r, ok := s.mgr.Get(id)
	s.Require().True(ok)
	s.Len(r.Members, n+1)
}

func (s *RoomManagerSuite) TestSnapshotSorted() {
	for i := 0; i < 5; i++ {
		s.mgr.Create(uint64(i), "r")
	}
	_, err := s.mgr.Leave(3, 2)
	s.Require().NoError(err)

	rooms := s.mgr.Snapshot()
	ids := make([]uint64, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	s.Equal([]uint64{1, 2, 4, 5}, ids)
}

func TestRoomManager(t *testing.T) {
	suite.Run(t, new(RoomManagerSuite))
}
