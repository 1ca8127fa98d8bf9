package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHardware(t *testing.T) {
	assert.GreaterOrEqual(t, GetCPUNum(), 1)
	assert.NotEmpty(t, Facts())
	// 受限环境下可能取不到内存信息，只校验不 panic。
	_ = GetMemoryCount()
	_ = GetUsedMemoryCount()
}
