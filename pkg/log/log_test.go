package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogSuite struct {
	suite.Suite
}

func (s *LogSuite) TestParseLevel() {
	l, err := parseLevel("trace")
	s.NoError(err)
	s.Equal(zapcore.DebugLevel, l)

	l, err = parseLevel("")
	s.NoError(err)
	s.Equal(zapcore.DebugLevel, l)

	l, err = parseLevel("warn")
	s.NoError(err)
	s.Equal(zapcore.WarnLevel, l)

	_, err = parseLevel("loud")
	s.Error(err)
}

func (s *LogSuite) TestInitLoggerWithFile() {
	dir := s.T().TempDir()
	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		File:   FileLogConfig{RootPath: dir, Filename: "relay.log"},
	}
	lg, props, err := InitLogger(cfg)
	s.Require().NoError(err)
	// InitLogger 会替换分级 Logger，测试结束后恢复为全局 Logger。
	s.T().Cleanup(func() { replaceLeveledLoggers(L()) })
	s.Equal(zapcore.InfoLevel, props.Level.Level())

	lg.Info("relay started", FieldSessionID(7))
	s.NoError(lg.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "relay.log"))
	s.Require().NoError(err)
	s.Contains(string(data), `"sessionID":7`)
	s.Contains(string(data), "relay started")
}

func (s *LogSuite) TestInitLoggerRejectsDirectory() {
	dir := s.T().TempDir()
	cfg := &Config{Level: "info", File: FileLogConfig{RootPath: filepath.Dir(dir), Filename: filepath.Base(dir)}}
	_, _, err := InitLogger(cfg)
	s.Error(err)
}

func (s *LogSuite) TestInitTestLogger() {
	lg, props, err := InitTestLogger(s.T(), nil)
	s.Require().NoError(err)
	s.Equal(zapcore.DebugLevel, props.Level.Level())
	lg.Debug("visible in test output", zap.String("k", "v"))
}

func (s *LogSuite) TestCtxFields() {
	ctx := WithSession(context.Background(), 3, "127.0.0.1:5000")
	l := Ctx(ctx)
	s.NotNil(l)
	s.Same(l, Ctx(ctx))

	nested := WithModule(ctx, "relay")
	s.NotSame(l, Ctx(nested))

	s.NotNil(Ctx(context.Background()))
}

func (s *LogSuite) TestRatedLogger() {
	l := With(FieldComponent("test")).WithRateGroup("log_suite", 0.0001, 1)
	s.True(l.RatedInfo(1, "first"))
	s.False(l.RatedInfo(1, "second"))
	s.False(l.RatedWarn(1, "third"))
}

func (s *LogSuite) TestBinder() {
	var b Binder
	s.NotNil(b.Logger())

	custom := With(FieldModule("binder"))
	b.SetLogger(custom)
	s.Same(custom, b.Logger())
}

func TestLog(t *testing.T) {
	suite.Run(t, new(LogSuite))
}
