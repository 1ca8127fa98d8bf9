package compressor

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/chatrelay-go/pkg/util/hardware"
)

// DefaultMaxDecodedSize 为未指定上限时单帧解压后的最大字节数，与默认最大帧长一致。
const DefaultMaxDecodedSize = 1 << 20

// ZstdCompressor 基于 klauspost/compress/zstd，持有独立的 encoder/decoder，
// EncodeAll/DecodeAll 可被多个连接并发调用。
//
// 说明：
//   - Close 与进行中的 Compress/Decompress 通过读写锁互斥，Close 之后的调用返回
//     ErrEncoderClosed/ErrDecoderClosed。
type ZstdCompressor struct {
	mu  sync.RWMutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor。
//
// 参数：
//   - concurrency <= 0：使用 hardware.GetCPUNum()；
//   - maxDecodedSize 为单帧解压后的上限，0 表示 DefaultMaxDecodedSize，超过时 Decompress 返回错误。
func NewZstdCompressor(concurrency int, maxDecodedSize uint64) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = hardware.GetCPUNum()
	}
	if maxDecodedSize == 0 {
		maxDecodedSize = DefaultMaxDecodedSize
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
		zstd.WithEncoderLevel(zstd.SpeedFastest),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(concurrency),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil {
		return nil, zstd.ErrEncoderClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil {
		return nil, zstd.ErrDecoderClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return c.dec.DecodeAll(src, dst[:0])
}

// Close 等待进行中的调用结束后释放 encoder/decoder，可重复调用。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
