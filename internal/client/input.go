package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

const helpText = "\n   Recognized Requests: " +
	"\n      @user <user id #> <message>" +
	"\n      @room <room id #> <message>" +
	"\n      @create <room name>" +
	"\n      @join <room id #>" +
	"\n      @leave <room id #>"

// ErrEmptyInput 表示输入为空，调用方应直接忽略。
var ErrEmptyInput = errors.New("empty input")

// InputError 为用户输入错误，Error 返回可直接展示给用户的提示。
type InputError struct {
	Text string
}

func (e *InputError) Error() string {
	return e.Text
}

func inputErrorf(format string, args ...any) error {
	return &InputError{Text: "System: " + fmt.Sprintf(format, args...)}
}

// ParseInput 将一行用户输入解析为数据包。
//
// 规则：
//   - 不以 @ 开头的输入原样作为 sendMessageAll 的消息体；
//   - @user <id> <message>、@room <id> <message>、@create <name>、@join <id>、@leave <id> 映射为对应命令；
//   - 参数缺失、id 不是数字、消息为空、参数过多或请求未知时返回 *InputError。
func ParseInput(line string) (protocol.Packet, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return protocol.Packet{}, ErrEmptyInput
	}
	if !strings.HasPrefix(line, "@") {
		return protocol.SendMessageAll(line), nil
	}

	request, rest, _ := strings.Cut(line, " ")
	switch request {
	case "@user", "@room", "@create", "@join", "@leave":
		if strings.TrimSpace(rest) == "" {
			return protocol.Packet{}, inputErrorf("Insufficient arguments provided for command '%s'.", line)
		}
	default:
		return protocol.Packet{}, inputErrorf("Unrecognized request '%s' in command '%s'.%s", request, line, helpText)
	}

	switch request {
	case "@user", "@room":
		idText, body, _ := strings.Cut(rest, " ")
		id, err := parseID(idText, line)
		if err != nil {
			return protocol.Packet{}, err
		}
		if strings.TrimSpace(body) == "" {
			if request == "@user" {
				return protocol.Packet{}, inputErrorf("Cannot send an empty message to a user.")
			}
			return protocol.Packet{}, inputErrorf("Cannot send an empty message to a room.")
		}
		if request == "@user" {
			return protocol.SendMessageUser(id, body), nil
		}
		return protocol.SendMessageRoom(id, body), nil

	case "@create":
		return protocol.CreateRoom(strings.TrimSpace(rest)), nil

	default:
		if strings.Contains(strings.TrimSpace(rest), " ") {
			return protocol.Packet{}, inputErrorf("Too many arguments provided in command '%s'.", line)
		}
		id, err := parseID(strings.TrimSpace(rest), line)
		if err != nil {
			return protocol.Packet{}, err
		}
		if request == "@join" {
			return protocol.JoinRoom(id), nil
		}
		return protocol.LeaveRoom(id), nil
	}
}

func parseID(text, line string) (uint64, error) {
	id, err := strconv.ParseUint(text, 10, 63)
	if err != nil {
		return 0, inputErrorf("'%s' in command '%s' is not a valid number.", text, line)
	}
	return id, nil
}
