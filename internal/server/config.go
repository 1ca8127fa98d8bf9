package server

import (
	"time"

	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/framer"
	"github.com/lk2023060901/chatrelay-go/internal/network/serializer"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

// ConfigKey 为配置文件中服务器配置所在的节。
const ConfigKey = "server"

// Config 为中继服务器配置，对应配置文件的 server 节。
type Config struct {
	// Addr 为 TCP 监听地址。
	Addr string `mapstructure:"addr"`
	// WSAddr 为 WebSocket 接入的监听地址，为空表示关闭。
	WSAddr string `mapstructure:"ws_addr"`
	// AdminAddr 为运维端口（gRPC 健康检查、/metrics、/healthz），为空表示关闭。
	AdminAddr string `mapstructure:"admin_addr"`
	// HostName 为服务端公告使用的名字。
	HostName string `mapstructure:"host_name"`
	// ServerID 为服务发现中使用的实例 id，为空时由主机名与端口生成。
	ServerID string `mapstructure:"server_id"`

	MaxWorkers         int           `mapstructure:"max_workers"`
	AcceptPollInterval time.Duration `mapstructure:"accept_poll_interval"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	SendQueueSize      int           `mapstructure:"send_queue_size"`

	MaxFrameSize    uint32 `mapstructure:"max_frame_size"`
	Serializer      string `mapstructure:"serializer"`
	Compression     bool   `mapstructure:"compression"`
	CompressMinSize int    `mapstructure:"compress_min_size"`

	// MessageRate 为每个会话每秒允许的命令数，0 表示不限流。
	MessageRate  float64 `mapstructure:"message_rate"`
	MessageBurst float64 `mapstructure:"message_burst"`

	// ShutdownGrace 为停止时等待客户端自行断开的最长时间，超时后强制关闭剩余连接。
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		HostName:           "HOST",
		MaxWorkers:         20,
		AcceptPollInterval: time.Second,
		WriteTimeout:       10 * time.Second,
		SendQueueSize:      1024,
		MaxFrameSize:       framer.DefaultMaxFrameSize,
		Serializer:         serializer.NameProto,
		CompressMinSize:    1024,
		MessageRate:        0,
		MessageBurst:       10,
		ShutdownGrace:      5 * time.Second,
	}
}

// SetDefaults 将默认配置写入 v 的 server 节。
// 只有设置过默认值的 key 才能被环境变量覆盖，因此每个字段都需要在这里登记。
func SetDefaults(v *zviper.Config) {
	d := DefaultConfig()
	defaults := map[string]any{
		"addr":                 d.Addr,
		"ws_addr":              d.WSAddr,
		"admin_addr":           d.AdminAddr,
		"host_name":            d.HostName,
		"server_id":            d.ServerID,
		"max_workers":          d.MaxWorkers,
		"accept_poll_interval": d.AcceptPollInterval,
		"read_timeout":         d.ReadTimeout,
		"write_timeout":        d.WriteTimeout,
		"send_queue_size":      d.SendQueueSize,
		"max_frame_size":       d.MaxFrameSize,
		"serializer":           d.Serializer,
		"compression":          d.Compression,
		"compress_min_size":    d.CompressMinSize,
		"message_rate":         d.MessageRate,
		"message_burst":        d.MessageBurst,
		"shutdown_grace":       d.ShutdownGrace,
	}
	for key, value := range defaults {
		v.SetDefault(ConfigKey+"."+key, value)
	}
}

// LoadConfig 从 v 中读取 server 节并校验。
func LoadConfig(v *zviper.Config) (Config, error) {
	cfg := DefaultConfig()
	if err := v.UnmarshalKey(ConfigKey, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法。
func (c Config) Validate() error {
	if c.Addr == "" {
		return merr.WrapErrParameterMissing("server.addr")
	}
	if c.MaxWorkers <= 0 {
		return merr.WrapErrParameterInvalidMsg("server.max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.AcceptPollInterval <= 0 {
		return merr.WrapErrParameterInvalidMsg("server.accept_poll_interval must be positive, got %s", c.AcceptPollInterval)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownGrace < 0 {
		return merr.WrapErrParameterInvalidMsg("server timeouts must not be negative")
	}
	if c.SendQueueSize < 0 || c.CompressMinSize < 0 {
		return merr.WrapErrParameterInvalidMsg("server sizes must not be negative")
	}
	if c.MessageRate < 0 {
		return merr.WrapErrParameterInvalidMsg("server.message_rate must not be negative, got %v", c.MessageRate)
	}
	if c.MessageRate > 0 && c.MessageBurst < 1 {
		return merr.WrapErrParameterInvalidMsg("server.message_burst must be at least 1 when rate limiting, got %v", c.MessageBurst)
	}
	if _, err := serializer.New(c.Serializer); err != nil {
		return err
	}
	return nil
}

func (c Config) codecConfig() codec.Config {
	return codec.Config{
		Serializer:      c.Serializer,
		Compression:     c.Compression,
		CompressMinSize: c.CompressMinSize,
		MaxFrameSize:    c.MaxFrameSize,
	}
}
