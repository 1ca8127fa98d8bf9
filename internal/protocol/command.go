package protocol

import "strconv"

// Command 为数据包的命令标签，取值集合是封闭的。
type Command uint8

const (
	CommandUnknown Command = iota
	CommandJoinServer
	CommandLeaveServer
	CommandSendMessageAll
	CommandSendMessageUser
	CommandSendMessageRoom
	CommandCreateRoom
	CommandJoinRoom
	CommandLeaveRoom
	CommandUserUpdate
	CommandRoomUpdate
	CommandDisplayToUser
	CommandShutdown

	commandEnd
)

var commandNames = [...]string{
	CommandUnknown:         "unknown",
	CommandJoinServer:      "joinServer",
	CommandLeaveServer:     "leaveServer",
	CommandSendMessageAll:  "sendMessageAll",
	CommandSendMessageUser: "sendMessageUser",
	CommandSendMessageRoom: "sendMessageRoom",
	CommandCreateRoom:      "createRoom",
	CommandJoinRoom:        "joinRoom",
	CommandLeaveRoom:       "leaveRoom",
	CommandUserUpdate:      "userUpdate",
	CommandRoomUpdate:      "roomUpdate",
	CommandDisplayToUser:   "displayToUser",
	CommandShutdown:        "shutdown",
}

func (c Command) String() string {
	if c < commandEnd {
		return commandNames[c]
	}
	return "command(" + strconv.Itoa(int(c)) + ")"
}

// Valid 判断命令是否属于已知集合。
func (c Command) Valid() bool {
	return c > CommandUnknown && c < commandEnd
}

// FromClient 判断命令是否允许由客户端发出。
func (c Command) FromClient() bool {
	return c >= CommandJoinServer && c <= CommandLeaveRoom
}

// ParseCommand 按名称解析命令，名称区分大小写。
func ParseCommand(name string) (Command, bool) {
	for c := CommandJoinServer; c < commandEnd; c++ {
		if commandNames[c] == name {
			return c, true
		}
	}
	return CommandUnknown, false
}
