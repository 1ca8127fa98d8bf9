package serializer

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// Packet 的 protobuf 字段号，顺序即线上顺序。
const (
	fieldCommand  protowire.Number = 1 // varint
	fieldTargetID protowire.Number = 2 // zigzag varint (sint64)
	fieldMessage  protowire.Number = 3 // bytes, UTF-8
)

// ProtoSerializer 按 protobuf 线格式编码 Packet，等价于：
//
//	message Packet {
//	  uint32 command   = 1;
//	  sint64 target_id = 2;
//	  string message   = 3;
//	}
//
// target_id 总是写出，即使其值为 -1；解码时缺失的 target_id 视为 -1。
type ProtoSerializer struct{}

var _ Serializer = ProtoSerializer{}

func (ProtoSerializer) Name() string { return NameProto }

func (ProtoSerializer) Marshal(dst []byte, pkt protocol.Packet) ([]byte, error) {
	b := protowire.AppendTag(dst, fieldCommand, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pkt.Command))
	b = protowire.AppendTag(b, fieldTargetID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(pkt.TargetID))
	if pkt.Message != "" {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendString(b, pkt.Message)
	}
	return b, nil
}

func (ProtoSerializer) Unmarshal(data []byte) (protocol.Packet, error) {
	pkt := protocol.Packet{TargetID: protocol.NoTarget}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protocol.Packet{}, merr.WrapErrMalformedCommand(protowire.ParseError(n).Error(), "tag")
		}
		data = data[n:]

		switch {
		case num == fieldCommand && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protocol.Packet{}, merr.WrapErrMalformedCommand(protowire.ParseError(n).Error(), "command")
			}
			if v > 0xff {
				return protocol.Packet{}, merr.WrapErrMalformedCommand("command tag out of range")
			}
			pkt.Command = protocol.Command(v)
			data = data[n:]
		case num == fieldTargetID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protocol.Packet{}, merr.WrapErrMalformedCommand(protowire.ParseError(n).Error(), "targetId")
			}
			pkt.TargetID = protowire.DecodeZigZag(v)
			data = data[n:]
		case num == fieldMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protocol.Packet{}, merr.WrapErrMalformedCommand(protowire.ParseError(n).Error(), "message")
			}
			if !utf8.Valid(v) {
				return protocol.Packet{}, merr.WrapErrMalformedCommand("message is not valid UTF-8")
			}
			pkt.Message = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protocol.Packet{}, merr.WrapErrMalformedCommand(protowire.ParseError(n).Error(), "unknown field")
			}
			data = data[n:]
		}
	}
	return pkt, nil
}
