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

package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

// GetCPUNum 返回可用的 CPU 数，即 GOMAXPROCS，容器环境下由 automaxprocs 修正。
func GetCPUNum() int {
	return runtime.GOMAXPROCS(0)
}

// GetMemoryCount 返回可用内存字节数，在容器内取宿主内存与 cgroup 限制中的较小值。
// 获取失败时返回 0。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get host memory", zap.Error(err))
		return 0
	}
	total := stats.Total

	if limit, err := getContainerMemLimit(); err == nil && limit > 0 && limit < total {
		return limit
	}
	return total
}

// GetUsedMemoryCount 返回宿主已使用的内存字节数，获取失败时返回 0。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get used memory", zap.Error(err))
		return 0
	}
	return stats.Used
}

// Facts 返回用于启动日志的主机信息字段。
func Facts() []zap.Field {
	return []zap.Field{
		zap.Int("cpus", GetCPUNum()),
		zap.Uint64("memoryBytes", GetMemoryCount()),
		zap.Uint64("usedMemoryBytes", GetUsedMemoryCount()),
		zap.String("goos", runtime.GOOS),
		zap.String("goarch", runtime.GOARCH),
	}
}
