package framer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

type FramerSuite struct {
	suite.Suite
	framer *LengthPrefixedFramer
}

func (s *FramerSuite) SetupTest() {
	s.framer = NewLengthPrefixedFramer(64)
}

func (s *FramerSuite) TestRoundTrip() {
	var stream bytes.Buffer
	s.Require().NoError(s.framer.WriteFrame(&stream, 0, []byte("first")))
	s.Require().NoError(s.framer.WriteFrame(&stream, FlagCompressed, []byte("second")))
	s.Require().NoError(s.framer.WriteFrame(&stream, 0, nil))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	flags, err := s.framer.ReadFrame(&stream, buf)
	s.Require().NoError(err)
	s.Equal(uint8(0), flags)
	s.Equal("first", string(buf.B))

	flags, err = s.framer.ReadFrame(&stream, buf)
	s.Require().NoError(err)
	s.Equal(FlagCompressed, flags)
	s.Equal("second", string(buf.B))

	_, err = s.framer.ReadFrame(&stream, buf)
	s.Require().NoError(err)
	s.Empty(buf.B)

	_, err = s.framer.ReadFrame(&stream, buf)
	s.Equal(io.EOF, err)
}

func (s *FramerSuite) TestHeaderLayout() {
	var stream bytes.Buffer
	s.Require().NoError(s.framer.WriteFrame(&stream, FlagCompressed, []byte("ab")))
	s.Equal([]byte{0, 0, 0, 3, FlagCompressed, 'a', 'b'}, stream.Bytes())
}

func (s *FramerSuite) TestTooLarge() {
	var stream bytes.Buffer
	err := s.framer.WriteFrame(&stream, 0, make([]byte, 64))
	s.ErrorIs(err, merr.ErrFrameTooLarge)
	s.Zero(stream.Len())

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1000)
	_, err = s.framer.ReadFrame(bytes.NewReader(header[:]), bytebufferpool.Get())
	s.ErrorIs(err, merr.ErrFrameTooLarge)
}

func (s *FramerSuite) TestTruncated() {
	_, err := s.framer.ReadFrame(bytes.NewReader([]byte{0, 0}), bytebufferpool.Get())
	s.ErrorIs(err, io.ErrUnexpectedEOF)

	_, err = s.framer.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 0, 'a'}), bytebufferpool.Get())
	s.ErrorIs(err, io.ErrUnexpectedEOF)

	_, err = s.framer.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), bytebufferpool.Get())
	s.ErrorIs(err, merr.ErrMalformedCommand)
}

func TestFramer(t *testing.T) {
	suite.Run(t, new(FramerSuite))
}
