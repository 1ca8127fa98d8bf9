package chat

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/room"
)

const anonymousName = "anon"

// RenderUsers 渲染用户列表，只包含已加入服务器（Active）的会话，按 id 升序。
//
// 格式：
//
//	<n> USERS
//
//	# <id> <name>
func RenderUsers(sessions []*session.Session) string {
	var (
		sb    strings.Builder
		lines []string
	)
	for _, sess := range sessions {
		if sess.State() != session.StateActive {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n# %d %s", sess.ID(), sess.Name()))
	}
	fmt.Fprintf(&sb, "%d USERS\n", len(lines))
	for _, line := range lines {
		sb.WriteString(line)
	}
	return sb.String()
}

// RenderRooms 渲染聊天室列表及其成员，nameOf 用于查询成员显示名。
//
// 格式：
//
//	<n> ROOMS
//
//	# <roomId> <roomName>
//	   # <memberId> <memberName>
func RenderRooms(rooms []room.Room, nameOf func(id uint64) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d ROOMS\n", len(rooms))
	for _, r := range rooms {
		fmt.Fprintf(&sb, "\n# %d %s", r.ID, r.Name)
		for _, member := range r.Members {
			fmt.Fprintf(&sb, "\n   # %d %s", member, nameOf(member))
		}
	}
	return sb.String()
}

func welcomeText(name string, id uint64) string {
	return fmt.Sprintf("System: Welcome to the server, %s! Your user id # is %d.", name, id)
}

func chatLine(name string, id uint64, body string) string {
	return fmt.Sprintf("%s (# %d): %s", name, id, body)
}

func roomLine(r room.Room, name string, id uint64, body string) string {
	return fmt.Sprintf("[%s # %d] %s", r.Name, r.ID, chatLine(name, id, body))
}

func hostLine(host, body string) string {
	return fmt.Sprintf("%s: %s", host, body)
}

func userNotFoundText(target int64) string {
	return fmt.Sprintf("System: User id # %d not found.", target)
}

func roomNotFoundText(roomID int64) string {
	return fmt.Sprintf("System: Room id # %d not found.", roomID)
}

func notMemberSendText(r room.Room) string {
	return fmt.Sprintf("System: You are not a member of room '%s' (id # %d). You cannot send a message to a room you aren't in.", r.Name, r.ID)
}

func notMemberText(r room.Room) string {
	return fmt.Sprintf("System: You are not a member of room '%s' (id # %d).", r.Name, r.ID)
}

func alreadyMemberText(r room.Room) string {
	return fmt.Sprintf("System: You are already a member of room '%s' (id # %d).", r.Name, r.ID)
}

func roomCreatedText(name string, id uint64) string {
	return fmt.Sprintf("System: Room '%s' has been created under id # %d with you in it.", name, id)
}

func roomJoinedText(r room.Room) string {
	return fmt.Sprintf("System: You have joined room '%s' with id # %d.", r.Name, r.ID)
}

func roomLeftText(r room.Room) string {
	return fmt.Sprintf("System: You have left room '%s' with id # %d.", r.Name, r.ID)
}

const rateLimitedText = "System: You are sending messages too fast."

func connectedText(id uint64) string {
	return fmt.Sprintf("System: User # %d connected to server.", id)
}

func joinedChatText(id uint64, name string) string {
	return fmt.Sprintf("System: User # %d has joined the chat as %s.", id, name)
}

func leftChatText(id uint64, name string) string {
	if name == "" {
		return fmt.Sprintf("System: User # %d has left the chat.", id)
	}
	return fmt.Sprintf("System: User # %d (%s) has left the chat.", id, name)
}
