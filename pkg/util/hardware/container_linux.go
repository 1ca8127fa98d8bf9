//go:build linux

package hardware

import (
	"github.com/cockroachdb/errors"
	"github.com/containerd/cgroups/v3"
	"github.com/containerd/cgroups/v3/cgroup1"
	"github.com/containerd/cgroups/v3/cgroup2"
)

// getContainerMemLimit 读取当前 cgroup 的内存上限，未设置上限时返回一个极大值。
func getContainerMemLimit() (uint64, error) {
	if cgroups.Mode() == cgroups.Unified {
		manager, err := cgroup2.Load("/")
		if err != nil {
			return 0, errors.Wrap(err, "load cgroup2")
		}
		stats, err := manager.Stat()
		if err != nil {
			return 0, errors.Wrap(err, "stat cgroup2")
		}
		return stats.GetMemory().GetUsageLimit(), nil
	}

	control, err := cgroup1.Load(cgroup1.RootPath)
	if err != nil {
		return 0, errors.Wrap(err, "load cgroup1")
	}
	stats, err := control.Stat(cgroup1.IgnoreNotExist)
	if err != nil {
		return 0, errors.Wrap(err, "stat cgroup1")
	}
	return stats.GetMemory().GetUsage().GetLimit(), nil
}
