// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envRateEnable     = "CHATRELAY_LOG_RATE_ENABLE"
	envRateCredit     = "CHATRELAY_LOG_RATE_CREDIT_PER_SECOND"
	envRateMaxBalance = "CHATRELAY_LOG_RATE_MAX_BALANCE"
)

var _globalL, _globalP, _globalS atomic.Value

// _globalR 以固定类型的指针保存，避免 atomic.Value 存入不同具体类型。
var _globalR atomic.Pointer[rateLimiterBox]

var (
	_globalLevelLogger sync.Map
	_namedRateLimiters sync.Map
)

// RateLimiter 为限流日志所需的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type rateLimiterBox struct {
	RateLimiter
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	l, p := newStdLogger()

	replaceLeveledLoggers(l)
	_globalL.Store(l)
	_globalP.Store(p)
	_globalS.Store(l.Sugar())

	configureRateLimiterFromEnv()
}

// InitLogger 按配置创建 zap Logger。
//
// 说明：
//   - 文件输出通过 lumberjack 滚动；
//   - 返回的 Logger 以 debug 级别构建，实际级别由 ZapProperties.Level 控制，
//     以便运行期通过 SetLevel 调整。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
	}

	debugCfg := *cfg
	debugCfg.Level = "debug"
	debugL, r, err := InitLoggerWithWriteSyncer(&debugCfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	replaceLeveledLoggers(debugL)
	r.Level.SetLevel(level)
	return debugL.WithOptions(zap.AddCallerSkip(1)), r, nil
}

// InitLoggerWithWriteSyncer 使用指定的 WriteSyncer 创建 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	l, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
	}
	level := zap.NewAtomicLevelAt(l)
	core := zapcore.NewCore(newZapEncoder(cfg), output, level)
	opts = append(cfg.buildOptions(output), opts...)
	lg := zap.New(core, opts...)
	return lg, &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("can't use directory %s as log file name", logPath)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}

	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	conf := &Config{Level: "info", Stdout: true, Format: FormatConsole}
	lg, r, _ := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	return lg, r
}

// L 返回全局 Logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// S 返回全局 SugaredLogger。
func S() *zap.SugaredLogger {
	return _globalS.Load().(*zap.SugaredLogger)
}

// R 返回限流日志使用的全局 RateLimiter，未开启时返回不丢弃任何日志的实现。
func R() RateLimiter {
	if box := _globalR.Load(); box != nil && box.RateLimiter != nil {
		return box.RateLimiter
	}
	return nopRateLimiter{}
}

func ctxL() *zap.Logger {
	level := _globalP.Load().(*ZapProperties).Level.Level()
	l, ok := _globalLevelLogger.Load(level)
	if !ok {
		return L()
	}
	return l.(*zap.Logger)
}

func leveledL(level zapcore.Level) *zap.Logger {
	v, ok := _globalLevelLogger.Load(level)
	if !ok {
		return L()
	}
	return v.(*zap.Logger)
}

// ReplaceGlobals 替换全局 Logger 与 SugaredLogger，并发安全。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalS.Store(logger.Sugar())
	_globalP.Store(props)
}

func replaceLeveledLoggers(debugLogger *zap.Logger) {
	levels := []zapcore.Level{
		zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel,
		zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel,
	}
	for _, level := range levels {
		_globalLevelLogger.Store(level, debugLogger.WithOptions(zap.IncreaseLevel(level)))
	}
}

// Sync 刷新所有缓冲中的日志。
func Sync() error {
	if err := L().Sync(); err != nil {
		return err
	}
	var reterr error
	_globalLevelLogger.Range(func(_, val any) bool {
		if err := val.(*zap.Logger).Sync(); err != nil {
			reterr = err
			return false
		}
		return true
	})
	return reterr
}

// Level 返回全局日志级别。
func Level() zap.AtomicLevel {
	return _globalP.Load().(*ZapProperties).Level
}

// configureRateLimiterFromEnv 根据 CHATRELAY_LOG_RATE_* 环境变量配置全局限流器。
//
//   - CHATRELAY_LOG_RATE_ENABLE: 1/true 开启，默认关闭；
//   - CHATRELAY_LOG_RATE_CREDIT_PER_SECOND: 每秒补充的额度，默认 1.0；
//   - CHATRELAY_LOG_RATE_MAX_BALANCE: 额度上限，默认 60.0。
func configureRateLimiterFromEnv() {
	if !getenvBool(envRateEnable, false) {
		_globalR.Store(&rateLimiterBox{nopRateLimiter{}})
		return
	}
	credit := getenvFloat(envRateCredit, 1.0)
	maxBalance := getenvFloat(envRateMaxBalance, 60.0)
	_globalR.Store(&rateLimiterBox{utils.NewRateLimiter(credit, maxBalance)})
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}
