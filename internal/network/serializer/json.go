package serializer

import (
	"github.com/bytedance/sonic"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// JSONSerializer 使用 bytedance/sonic 编码 Packet，命令以名称表示：
//
//	{"command":"sendMessageRoom","targetId":3,"message":"hi"}
type JSONSerializer struct{}

var _ Serializer = JSONSerializer{}

type jsonPacket struct {
	Command  string `json:"command"`
	TargetID *int64 `json:"targetId,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (JSONSerializer) Name() string { return NameJSON }

func (JSONSerializer) Marshal(dst []byte, pkt protocol.Packet) ([]byte, error) {
	target := pkt.TargetID
	data, err := sonic.Marshal(jsonPacket{
		Command:  pkt.Command.String(),
		TargetID: &target,
		Message:  pkt.Message,
	})
	if err != nil {
		return nil, err
	}
	return append(dst, data...), nil
}

func (JSONSerializer) Unmarshal(data []byte) (protocol.Packet, error) {
	var jp jsonPacket
	if err := sonic.Unmarshal(data, &jp); err != nil {
		return protocol.Packet{}, merr.WrapErrMalformedCommand(err.Error(), "json")
	}
	cmd, ok := protocol.ParseCommand(jp.Command)
	if !ok {
		return protocol.Packet{}, merr.WrapErrMalformedCommand("unknown command " + jp.Command)
	}
	pkt := protocol.Packet{Command: cmd, TargetID: protocol.NoTarget, Message: jp.Message}
	if jp.TargetID != nil {
		pkt.TargetID = *jp.TargetID
	}
	return pkt, nil
}
