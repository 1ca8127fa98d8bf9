package log

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSessionID = "sessionID"
	FieldNameRoomID    = "roomID"
	FieldNameCommand   = "command"
	FieldNameRemote    = "remote"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

func FieldSessionID(id uint64) zap.Field {
	return zap.Uint64(FieldNameSessionID, id)
}

func FieldRoomID(id uint64) zap.Field {
	return zap.Uint64(FieldNameRoomID, id)
}

// FieldCommand 使用命令的字符串形式作为字段值。
func FieldCommand(cmd fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNameCommand, cmd)
}

func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}
