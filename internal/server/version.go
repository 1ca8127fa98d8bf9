package server

import "github.com/blang/semver/v4"

// Version 为中继服务器版本，写入服务发现记录并由 version 子命令输出。
const Version = "1.2.0"

// SemVersion 返回解析后的版本号。
func SemVersion() semver.Version {
	return semver.MustParse(Version)
}
