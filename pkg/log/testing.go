// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// 说明：testingWriter 基于 go.uber.org/zap/zaptest 中的实现，遵循 MIT 许可。

package log

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// InitTestLogger 创建一个输出到 t.Log 的 Logger。
// 内部 zap 错误会标记测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	if cfg == nil {
		cfg = &Config{Level: "debug", Format: FormatConsole}
	}
	writer := testingWriter{t: t}
	opts = append([]zap.Option{zap.ErrorOutput(writer.withMarkFailed(true))}, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

type testingWriter struct {
	t          zaptest.TestingT
	markFailed bool
}

func (w testingWriter) withMarkFailed(v bool) testingWriter {
	w.markFailed = v
	return w
}

func (w testingWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	// t.Log 会自动追加换行。
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	if w.markFailed {
		w.t.Fail()
	}
	return n, nil
}

func (w testingWriter) Sync() error {
	return nil
}
