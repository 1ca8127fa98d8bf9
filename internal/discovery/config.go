package discovery

import (
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

// ConfigKey 为配置文件中服务发现配置所在的节。
const ConfigKey = "etcd"

// SetDefaults 将默认配置写入 v 的 etcd 节。
func SetDefaults(v *zviper.Config) {
	v.SetDefault(ConfigKey+".enabled", false)
	v.SetDefault(ConfigKey+".endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault(ConfigKey+".root", DefaultRoot)
	v.SetDefault(ConfigKey+".ttl", defaultTTL)
	v.SetDefault(ConfigKey+".dial_timeout", defaultDialTimeout)
	v.SetDefault(ConfigKey+".retry_times", defaultRetryTimes)
}

// LoadConfig 从 v 中读取 etcd 节并补齐默认值。
func LoadConfig(v *zviper.Config) (Config, error) {
	var cfg Config
	if err := v.UnmarshalKey(ConfigKey, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}
