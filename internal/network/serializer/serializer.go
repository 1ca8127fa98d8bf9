package serializer

import (
	"strings"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const (
	NameProto = "proto"
	NameJSON  = "json"
)

// Serializer 负责 Packet 与帧载荷之间的转换。
//
// 约定：
//   - Marshal 将编码结果追加到 dst 之后返回，便于复用缓冲区；
//   - Unmarshal 不持有 data，返回的 Packet 与 data 无共享内存；
//   - 载荷格式错误统一返回 merr.ErrMalformedCommand。
type Serializer interface {
	Name() string
	Marshal(dst []byte, pkt protocol.Packet) ([]byte, error)
	Unmarshal(data []byte) (protocol.Packet, error)
}

// New 按名称创建 Serializer，名称不区分大小写，空串表示 proto。
func New(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "", NameProto:
		return ProtoSerializer{}, nil
	case NameJSON:
		return JSONSerializer{}, nil
	default:
		return nil, merr.WrapErrParameterInvalid("proto|json", name, "serializer")
	}
}
