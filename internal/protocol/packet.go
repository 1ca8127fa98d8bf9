package protocol

import "fmt"

// NoTarget 表示数据包不携带目标 id。
const NoTarget int64 = -1

// Packet 为线上传输的数据包，按值传递，构造后不再修改。
type Packet struct {
	Command  Command
	TargetID int64
	Message  string
}

func (p Packet) String() string {
	return fmt.Sprintf("%s(target=%d, len=%d)", p.Command, p.TargetID, len(p.Message))
}

func JoinServer(name string) Packet {
	return Packet{Command: CommandJoinServer, TargetID: NoTarget, Message: name}
}

func LeaveServer() Packet {
	return Packet{Command: CommandLeaveServer, TargetID: NoTarget}
}

func SendMessageAll(body string) Packet {
	return Packet{Command: CommandSendMessageAll, TargetID: NoTarget, Message: body}
}

func SendMessageUser(target uint64, body string) Packet {
	return Packet{Command: CommandSendMessageUser, TargetID: int64(target), Message: body}
}

func SendMessageRoom(room uint64, body string) Packet {
	return Packet{Command: CommandSendMessageRoom, TargetID: int64(room), Message: body}
}

func CreateRoom(name string) Packet {
	return Packet{Command: CommandCreateRoom, TargetID: NoTarget, Message: name}
}

func JoinRoom(room uint64) Packet {
	return Packet{Command: CommandJoinRoom, TargetID: int64(room)}
}

func LeaveRoom(room uint64) Packet {
	return Packet{Command: CommandLeaveRoom, TargetID: int64(room)}
}

// JoinAck 为服务端对 joinServer 的确认，目标 id 为分配给客户端的会话 id。
func JoinAck(sessionID uint64, text string) Packet {
	return Packet{Command: CommandJoinServer, TargetID: int64(sessionID), Message: text}
}

func UserUpdate(text string) Packet {
	return Packet{Command: CommandUserUpdate, TargetID: NoTarget, Message: text}
}

func RoomUpdate(text string) Packet {
	return Packet{Command: CommandRoomUpdate, TargetID: NoTarget, Message: text}
}

func DisplayToUser(text string) Packet {
	return Packet{Command: CommandDisplayToUser, TargetID: NoTarget, Message: text}
}

func Shutdown() Packet {
	return Packet{Command: CommandShutdown, TargetID: NoTarget}
}
