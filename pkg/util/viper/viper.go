package viper

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
//
// 取值优先级（高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值。
// 环境变量名为 <prefix>_<KEY>，key 中的 "." 替换为 "_"，例如 CHATRELAY_SERVER_ADDR。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config，envPrefix 为空时不读取环境变量。
func New(envPrefix string) *Config {
	v := spfviper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return &Config{v: v}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config file %q", path)
	}
	return nil
}

// LoadOptionalFile 与 LoadFile 相同，但文件不存在时返回 false 且不报错。
func (c *Config) LoadOptionalFile(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat config file %q", path)
	}
	return true, c.LoadFile(path)
}

// ConfigFileUsed 返回已加载的配置文件路径，未加载时为空。
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// SetDefault 设置 key 的默认值。只有设置过默认值或出现在配置文件中的 key 才会读取环境变量。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// BindPFlag 将命令行参数绑定到 key，只有参数被显式设置时才覆盖其他来源。
func (c *Config) BindPFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Newf("bind flag for %q: flag is nil", key)
	}
	return c.v.BindPFlag(key, flag)
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
//
// 子配置中每个叶子 key 都按完整优先级取值，因此环境变量与命令行参数同样生效。
func (c *Config) UnmarshalKey(key string, dst any) error {
	var node any = c.v.AllSettings()
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		if node, ok = m[part]; !ok {
			return nil
		}
	}
	section, ok := node.(map[string]any)
	if !ok {
		return errors.Newf("config key %q is not a section", key)
	}

	sub := spfviper.New()
	if err := sub.MergeConfigMap(section); err != nil {
		return errors.Wrapf(err, "merge config section %q", key)
	}
	return sub.Unmarshal(dst)
}
