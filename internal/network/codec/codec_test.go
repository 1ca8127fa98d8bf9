package codec

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chatrelay-go/internal/network/compressor"
	"github.com/lk2023060901/chatrelay-go/internal/network/framer"
	"github.com/lk2023060901/chatrelay-go/internal/network/serializer"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

type CodecSuite struct {
	suite.Suite
}

func (s *CodecSuite) TestDefaultRoundTrip() {
	c := Default()
	var stream bytes.Buffer
	pkts := []protocol.Packet{
		protocol.JoinServer("alice"),
		protocol.SendMessageRoom(3, "hello room"),
		protocol.Shutdown(),
	}
	for _, pkt := range pkts {
		s.Require().NoError(c.Encode(&stream, pkt))
	}
	for _, want := range pkts {
		got, err := c.Decode(&stream)
		s.Require().NoError(err)
		s.Equal(want, got)
	}
	_, err := c.Decode(&stream)
	s.ErrorIs(err, io.EOF)
}

func (s *CodecSuite) TestCompression() {
	zc, err := compressor.NewZstdCompressor(1, 0)
	s.Require().NoError(err)
	defer zc.Close()

	c, err := New(Options{
		Framer:            framer.NewLengthPrefixedFramer(0),
		Serializer:        serializer.JSONSerializer{},
		Compressor:        zc,
		EnableCompression: true,
		MinCompressSize:   64,
	})
	s.Require().NoError(err)

	big := protocol.RoomUpdate(strings.Repeat("\n# 1 lobby\n   # 2 bob", 100))
	small := protocol.JoinRoom(1)

	var stream bytes.Buffer
	s.Require().NoError(c.Encode(&stream, big))
	compressedLen := stream.Len()
	s.Require().NoError(c.Encode(&stream, small))

	// 第一帧被压缩，第二帧低于阈值不压缩。
	raw := stream.Bytes()
	s.Equal(framer.FlagCompressed, raw[4])
	s.Equal(uint8(0), raw[compressedLen+4])
	s.Less(compressedLen, len(big.Message))

	got, err := c.Decode(&stream)
	s.Require().NoError(err)
	s.Equal(big, got)
	got, err = c.Decode(&stream)
	s.Require().NoError(err)
	s.Equal(small, got)
}

func (s *CodecSuite) TestMalformedBodyKeepsStreamInSync() {
	c := Default()
	var stream bytes.Buffer
	s.Require().NoError(framer.NewLengthPrefixedFramer(0).WriteFrame(&stream, 0, []byte{0x08}))
	s.Require().NoError(c.Encode(&stream, protocol.LeaveServer()))

	_, err := c.Decode(&stream)
	s.ErrorIs(err, merr.ErrMalformedCommand)

	got, err := c.Decode(&stream)
	s.Require().NoError(err)
	s.Equal(protocol.LeaveServer(), got)
}

func (s *CodecSuite) TestOverPipe() {
	c := Default()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = c.Encode(client, protocol.SendMessageAll("over the wire"))
	}()
	got, err := c.Decode(server)
	s.Require().NoError(err)
	s.Equal(protocol.SendMessageAll("over the wire"), got)
}

func (s *CodecSuite) TestNewValidation() {
	_, err := New(Options{Serializer: serializer.ProtoSerializer{}})
	s.ErrorIs(err, merr.ErrParameterMissing)
	_, err = New(Options{Framer: framer.NewLengthPrefixedFramer(0)})
	s.ErrorIs(err, merr.ErrParameterMissing)
}

func (s *CodecSuite) TestNewFromConfig() {
	c, release, err := NewFromConfig(Config{Serializer: "json", Compression: true, CompressMinSize: 16})
	s.Require().NoError(err)
	defer release()

	var stream bytes.Buffer
	pkt := protocol.SendMessageAll(strings.Repeat("zstd ", 200))
	s.Require().NoError(c.Encode(&stream, pkt))
	got, err := c.Decode(&stream)
	s.Require().NoError(err)
	s.Equal(pkt, got)

	_, _, err = NewFromConfig(Config{Serializer: "xml"})
	s.Error(err)
}

func (s *CodecSuite) TestNewFromConfigLimitsDecodedSize() {
	c, release, err := NewFromConfig(Config{Compression: true, CompressMinSize: 16, MaxFrameSize: 4 << 10})
	s.Require().NoError(err)
	defer release()

	// 压缩后的帧小于上限，但解压后的载荷超过上限
	var stream bytes.Buffer
	s.Require().NoError(c.Encode(&stream, protocol.SendMessageAll(strings.Repeat("a", 64<<10))))
	s.Less(stream.Len(), 4<<10)
	_, err = c.Decode(&stream)
	s.Error(err)
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}
