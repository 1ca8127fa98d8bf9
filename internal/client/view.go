package client

import (
	"fmt"
	"io"
	"sync"
)

// View 接收服务器推送的展示信号，回调在连接的读协程中串行执行。
type View interface {
	// Joined 在服务器确认加入后调用，text 为欢迎语。
	Joined(id uint64, text string)
	Users(text string)
	Rooms(text string)
	Display(text string)
	// Closed 在连接结束后调用一次。
	Closed(err error)
}

// WriterView 将所有展示信号按行写入 io.Writer，用于终端客户端。
type WriterView struct {
	mu sync.Mutex
	w  io.Writer
}

var _ View = (*WriterView)(nil)

func NewWriterView(w io.Writer) *WriterView {
	return &WriterView{w: w}
}

func (v *WriterView) println(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = fmt.Fprintln(v.w, text)
}

func (v *WriterView) Joined(_ uint64, text string) {
	v.println(text)
}

func (v *WriterView) Users(text string) {
	v.println("----- " + text)
}

func (v *WriterView) Rooms(text string) {
	v.println("----- " + text)
}

func (v *WriterView) Display(text string) {
	v.println(text)
}

func (v *WriterView) Closed(err error) {
	if err != nil {
		v.println("Disconnected from server: " + err.Error())
		return
	}
	v.println("Disconnected from server.")
}
