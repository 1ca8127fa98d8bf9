package codec

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/lk2023060901/chatrelay-go/internal/network/compressor"
	"github.com/lk2023060901/chatrelay-go/internal/network/framer"
	"github.com/lk2023060901/chatrelay-go/internal/network/serializer"
	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// Codec 完成 Packet 与字节流之间的转换。
//
// 写出：Packet --> serializer --> [compress?] --> framer.WriteFrame
// 读入：framer.ReadFrame --> [decompress?] --> serializer --> Packet
//
// 同一个 Codec 可被多个连接并发使用；同一连接上的读写各自只能有一个调用方。
type Codec interface {
	Encode(w io.Writer, pkt protocol.Packet) error

	// Decode 读取并解码一个数据包。
	//
	// 错误分两类：
	//   - 载荷无法解析（merr.ErrMalformedCommand）：整帧已读完，流仍然同步，调用方可继续读取；
	//   - 其余错误（I/O、截断、超长帧）：流已不可用，调用方应结束连接。
	Decode(r io.Reader) (protocol.Packet, error)
}

// Options 用于构造 Codec。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
	Compressor compressor.Compressor // 允许为 nil（使用 NopCompressor）

	// EnableCompression 为 true 时，载荷不小于 MinCompressSize 的帧会被压缩。
	EnableCompression bool
	MinCompressSize   int
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor

	compress    bool
	minCompress int
}

var _ Codec = (*codec)(nil)

// New 创建 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, merr.WrapErrParameterMissing("framer")
	}
	if opts.Serializer == nil {
		return nil, merr.WrapErrParameterMissing("serializer")
	}

	c := &codec{
		framer:      opts.Framer,
		serializer:  opts.Serializer,
		compressor:  opts.Compressor,
		compress:    opts.EnableCompression,
		minCompress: opts.MinCompressSize,
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

// Default 返回 proto 序列化、不压缩、默认帧上限的 Codec。
func Default() Codec {
	c, _ := New(Options{
		Framer:     framer.NewLengthPrefixedFramer(0),
		Serializer: serializer.ProtoSerializer{},
	})
	return c
}

func (c *codec) Encode(w io.Writer, pkt protocol.Packet) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	body, err := c.serializer.Marshal(buf.B[:0], pkt)
	if err != nil {
		return errors.Wrapf(err, "codec: marshal %s", pkt.Command)
	}
	buf.B = body

	var flags uint8
	if c.compress && len(body) >= c.minCompress && len(body) > 0 {
		out := bytebufferpool.Get()
		defer bytebufferpool.Put(out)
		packed, err := c.compressor.Compress(out.B, body)
		if err != nil {
			return errors.Wrap(err, "codec: compress")
		}
		out.B = packed
		body = packed
		flags |= framer.FlagCompressed
	}

	return c.framer.WriteFrame(w, flags, body)
}

func (c *codec) Decode(r io.Reader) (protocol.Packet, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	flags, err := c.framer.ReadFrame(r, buf)
	if err != nil {
		return protocol.Packet{}, err
	}

	data := buf.B
	if flags&framer.FlagCompressed != 0 {
		out := bytebufferpool.Get()
		defer bytebufferpool.Put(out)
		plain, err := c.compressor.Decompress(out.B, data)
		if err != nil {
			return protocol.Packet{}, merr.WrapErrMalformedCommand(err.Error(), "decompress")
		}
		out.B = plain
		data = plain
	}

	return c.serializer.Unmarshal(data)
}
