package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// 帧格式：
//
//	+----------------+-----------+----------------------+
//	| length (u32 BE)| flags (u8)| payload (length - 1) |
//	+----------------+-----------+----------------------+
//
// length 统计 flags 与 payload 的总字节数，因此最小为 1。
const (
	headerSize = 4

	// FlagCompressed 表示 payload 经过压缩。
	FlagCompressed uint8 = 1 << 0

	// DefaultMaxFrameSize 为默认最大帧大小（不含 4 字节长度头）。
	DefaultMaxFrameSize uint32 = 1 << 20
)

// Framer 负责在字节流上划分帧边界。
type Framer interface {
	// WriteFrame 将 flags 与 payload 组装为一帧，通过一次 Write 写出。
	WriteFrame(w io.Writer, flags uint8, payload []byte) error

	// ReadFrame 读取一帧，payload 写入 buf.B（覆盖原内容）。
	//
	// 返回：
	//   - 在帧头之前遇到 EOF 时返回 io.EOF；
	//   - 帧内截断返回包装后的 io.ErrUnexpectedEOF；
	//   - 长度非法返回 merr.ErrFrameTooLarge / merr.ErrMalformedCommand。
	ReadFrame(r io.Reader, buf *bytebufferpool.ByteBuffer) (flags uint8, err error)
}

// LengthPrefixedFramer 使用 4 字节大端长度前缀划分帧。
type LengthPrefixedFramer struct {
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建帧编码器，maxFrameSize 为 0 时使用 DefaultMaxFrameSize。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{MaxFrameSize: maxFrameSize}
}

func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, flags uint8, payload []byte) error {
	length := uint32(len(payload)) + 1
	if length > f.maxSize() {
		return merr.WrapErrFrameTooLarge(length, f.maxSize())
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var header [headerSize + 1]byte
	binary.BigEndian.PutUint32(header[:headerSize], length)
	header[headerSize] = flags
	_, _ = buf.Write(header[:])
	_, _ = buf.Write(payload)

	if _, err := w.Write(buf.B); err != nil {
		return errors.Wrap(err, "framer: write frame")
	}
	return nil
}

func (f *LengthPrefixedFramer) ReadFrame(r io.Reader, buf *bytebufferpool.ByteBuffer) (uint8, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, errors.Wrap(err, "framer: read header")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return 0, merr.WrapErrMalformedCommand("zero length frame")
	}
	if length > f.maxSize() {
		return 0, merr.WrapErrFrameTooLarge(length, f.maxSize())
	}

	if cap(buf.B) < int(length) {
		buf.B = make([]byte, int(length))
	} else {
		buf.B = buf.B[:int(length)]
	}
	if _, err := io.ReadFull(r, buf.B); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, errors.Wrap(err, "framer: read body")
	}

	flags := buf.B[0]
	// payload 前移，去掉 flags 字节。
	n := copy(buf.B, buf.B[1:])
	buf.B = buf.B[:n]
	return flags, nil
}

func (f *LengthPrefixedFramer) maxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}
