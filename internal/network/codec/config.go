package codec

import (
	"github.com/lk2023060901/chatrelay-go/internal/network/compressor"
	"github.com/lk2023060901/chatrelay-go/internal/network/framer"
	"github.com/lk2023060901/chatrelay-go/internal/network/serializer"
)

// Config 为按名称描述的编解码配置，服务器与客户端需保持一致。
type Config struct {
	// Serializer 为 proto 或 json，空串表示 proto。
	Serializer string
	// Compression 为 true 时使用 zstd 压缩不小于 CompressMinSize 的载荷，
	// 解压后的载荷同样受 MaxFrameSize 限制。
	Compression     bool
	CompressMinSize int
	// MaxFrameSize 为 0 时使用 framer.DefaultMaxFrameSize。
	MaxFrameSize uint32
}

// NewFromConfig 按配置组装 Codec，返回的 release 用于释放压缩器资源，需在不再使用 Codec 后调用。
func NewFromConfig(cfg Config) (Codec, func(), error) {
	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, nil, err
	}
	opts := Options{
		Framer:     framer.NewLengthPrefixedFramer(cfg.MaxFrameSize),
		Serializer: ser,
	}
	release := func() {}
	if cfg.Compression {
		maxFrame := cfg.MaxFrameSize
		if maxFrame == 0 {
			maxFrame = framer.DefaultMaxFrameSize
		}
		zc, err := compressor.NewZstdCompressor(0, uint64(maxFrame))
		if err != nil {
			return nil, nil, err
		}
		opts.Compressor = zc
		opts.EnableCompression = true
		opts.MinCompressSize = cfg.CompressMinSize
		release = zc.Close
	}
	c, err := New(opts)
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}
