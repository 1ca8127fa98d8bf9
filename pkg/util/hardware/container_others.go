//go:build !linux

package hardware

import "github.com/cockroachdb/errors"

func getContainerMemLimit() (uint64, error) {
	return 0, errors.New("container memory limit is only available on linux")
}
