package protocol

import (
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

// Request 为客户端命令的封闭变体，只有本包内定义的类型实现该接口。
// 处理方应使用类型分支逐一处理，并在 default 分支中报告未知请求。
type Request interface {
	Command() Command
	isRequest()
}

type JoinServerRequest struct {
	Name string
}

type LeaveServerRequest struct{}

type SendMessageAllRequest struct {
	Body string
}

// SendMessageUserRequest 的 Target 可能为负数，由处理方报告用户不存在。
type SendMessageUserRequest struct {
	Target int64
	Body   string
}

type SendMessageRoomRequest struct {
	Room int64
	Body string
}

type CreateRoomRequest struct {
	Name string
}

type JoinRoomRequest struct {
	Room int64
}

type LeaveRoomRequest struct {
	Room int64
}

func (JoinServerRequest) Command() Command      { return CommandJoinServer }
func (LeaveServerRequest) Command() Command     { return CommandLeaveServer }
func (SendMessageAllRequest) Command() Command  { return CommandSendMessageAll }
func (SendMessageUserRequest) Command() Command { return CommandSendMessageUser }
func (SendMessageRoomRequest) Command() Command { return CommandSendMessageRoom }
func (CreateRoomRequest) Command() Command      { return CommandCreateRoom }
func (JoinRoomRequest) Command() Command        { return CommandJoinRoom }
func (LeaveRoomRequest) Command() Command       { return CommandLeaveRoom }

func (JoinServerRequest) isRequest()      {}
func (LeaveServerRequest) isRequest()     {}
func (SendMessageAllRequest) isRequest()  {}
func (SendMessageUserRequest) isRequest() {}
func (SendMessageRoomRequest) isRequest() {}
func (CreateRoomRequest) isRequest()      {}
func (JoinRoomRequest) isRequest()        {}
func (LeaveRoomRequest) isRequest()       {}

// ParseRequest 将客户端数据包转换为对应的请求变体。
// 未知命令与服务端专用命令返回 merr.ErrMalformedCommand。
func ParseRequest(pkt Packet) (Request, error) {
	switch pkt.Command {
	case CommandJoinServer:
		return JoinServerRequest{Name: pkt.Message}, nil
	case CommandLeaveServer:
		return LeaveServerRequest{}, nil
	case CommandSendMessageAll:
		return SendMessageAllRequest{Body: pkt.Message}, nil
	case CommandSendMessageUser:
		return SendMessageUserRequest{Target: pkt.TargetID, Body: pkt.Message}, nil
	case CommandSendMessageRoom:
		return SendMessageRoomRequest{Room: pkt.TargetID, Body: pkt.Message}, nil
	case CommandCreateRoom:
		return CreateRoomRequest{Name: pkt.Message}, nil
	case CommandJoinRoom:
		return JoinRoomRequest{Room: pkt.TargetID}, nil
	case CommandLeaveRoom:
		return LeaveRoomRequest{Room: pkt.TargetID}, nil
	case CommandUserUpdate, CommandRoomUpdate, CommandDisplayToUser, CommandShutdown:
		return nil, merr.WrapErrMalformedCommand("server-only command " + pkt.Command.String())
	default:
		return nil, merr.WrapErrMalformedCommand("unknown " + pkt.Command.String())
	}
}
