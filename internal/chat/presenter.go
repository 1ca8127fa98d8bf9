package chat

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

// Presenter 接收服务端产生的展示信号：一行聊天/系统文本、完整用户列表、完整聊天室列表。
//
// 实现必须并发安全，且不能阻塞调用方。
type Presenter interface {
	Display(text string)
	Users(text string)
	Rooms(text string)
}

// LogPresenter 将展示信号写入日志。
type LogPresenter struct {
	logger *log.MLogger
}

var _ Presenter = (*LogPresenter)(nil)

func NewLogPresenter() *LogPresenter {
	return &LogPresenter{logger: log.With(log.FieldComponent("presenter"))}
}

func (p *LogPresenter) Display(text string) {
	p.logger.Info("display", zap.String("text", text))
}

func (p *LogPresenter) Users(text string) {
	p.logger.Debug("user list updated", zap.String("users", text))
}

func (p *LogPresenter) Rooms(text string) {
	p.logger.Debug("room list updated", zap.String("rooms", text))
}

type nopPresenter struct{}

func (nopPresenter) Display(string) {}
func (nopPresenter) Users(string)   {}
func (nopPresenter) Rooms(string)   {}
