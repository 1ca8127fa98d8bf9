package application

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	zlog "github.com/lk2023060901/chatrelay-go/pkg/log"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

const (
	// EnvPrefix 为所有配置项对应环境变量的前缀，例如 CHATRELAY_SERVER_ADDR。
	EnvPrefix = "CHATRELAY"
	// ConfigPathEnv 指定配置文件路径的环境变量。
	ConfigPathEnv = "CHATRELAY_CONFIG_FILE_PATH"
	// DefaultConfigPath 为默认配置文件路径，文件不存在时忽略。
	DefaultConfigPath = "./config.yaml"

	logConfigKey = "log"
)

// Application 为进程的运行时容器，负责加载配置并初始化全局日志。
type Application struct {
	cfg        *zviper.Config
	configPath string
}

// New 创建 Application，此时尚未加载配置文件，可先注册默认值与命令行参数。
func New() *Application {
	a := &Application{cfg: zviper.New(EnvPrefix)}
	a.setLogDefaults()
	return a
}

// Config 返回配置实例。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// ConfigPath 返回实际加载的配置文件路径，未加载文件时为空。
func (a *Application) ConfigPath() string {
	return a.configPath
}

// LoadConfig 解析配置文件路径并加载。
//
// 路径优先级（高到低）：
//  1. 命令行 --config（flagPath）；
//  2. 环境变量 CHATRELAY_CONFIG_FILE_PATH；
//  3. 默认 ./config.yaml。
//
// 显式指定的文件必须存在；默认路径不存在时只使用默认值、环境变量与命令行参数。
func (a *Application) LoadConfig(flagPath string) error {
	path := flagPath
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := a.cfg.LoadFile(path); err != nil {
			return err
		}
		a.configPath = path
		return nil
	}

	loaded, err := a.cfg.LoadOptionalFile(DefaultConfigPath)
	if err != nil {
		return err
	}
	if loaded {
		a.configPath = DefaultConfigPath
	}
	return nil
}

func (a *Application) setLogDefaults() {
	a.cfg.SetDefault(logConfigKey+".level", "info")
	a.cfg.SetDefault(logConfigKey+".format", zlog.FormatConsole)
	a.cfg.SetDefault(logConfigKey+".stdout", true)
	a.cfg.SetDefault(logConfigKey+".file.root_path", "")
	a.cfg.SetDefault(logConfigKey+".file.filename", "")
	a.cfg.SetDefault(logConfigKey+".file.max_size", 0)
	a.cfg.SetDefault(logConfigKey+".file.max_days", 0)
	a.cfg.SetDefault(logConfigKey+".file.max_backups", 0)
}

// LogConfig 读取 log 节。
func (a *Application) LogConfig() (zlog.Config, error) {
	var lc zlog.Config
	if err := a.cfg.UnmarshalKey(logConfigKey, &lc); err != nil {
		return zlog.Config{}, errors.Wrap(err, "decode log config")
	}
	return lc, nil
}

// InitLogging 按 log 节初始化并替换全局日志。
func (a *Application) InitLogging() error {
	lc, err := a.LogConfig()
	if err != nil {
		return err
	}
	logger, props, err := zlog.InitLogger(&lc)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	zlog.Info("logger initialized",
		zap.String("level", props.Level.String()),
		zap.String("format", lc.Format),
		zap.String("configFile", a.configPath))
	return nil
}
