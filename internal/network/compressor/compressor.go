package compressor

// Compressor 抽象了单条帧载荷的压缩与解压。
//
// dst 为可复用的目标缓冲区（长度可为 0），返回值为完整结果，可能与 dst 共享底层数组。
type Compressor interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
}

// NopCompressor 不做任何处理，直接返回输入。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}
