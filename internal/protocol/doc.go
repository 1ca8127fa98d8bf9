// Package protocol 定义客户端与中继服务之间交换的数据包。
//
// 每个数据包由三部分组成，按顺序为：命令标签、目标 id、消息文本。
// 目标 id 仅在命令需要时有意义，其余情况固定为 NoTarget（-1）。
//
// 客户端命令：
//
//	joinServer       message = 显示名
//	leaveServer      -
//	sendMessageAll   message = 正文
//	sendMessageUser  targetId = 会话 id，message = 正文
//	sendMessageRoom  targetId = 房间 id，message = 正文
//	createRoom       message = 房间名
//	joinRoom         targetId = 房间 id
//	leaveRoom        targetId = 房间 id
//
// 服务端命令：joinServer（确认）、userUpdate、roomUpdate、displayToUser、shutdown。
//
// 字节层面的编码由 internal/network/serializer 与 internal/network/framer 负责。
package protocol
