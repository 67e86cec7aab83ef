//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

// isEXDEV 识别 rename 的跨文件系统失败；*os.LinkError 与 fmt 包装都能透过 errors.Is 展开。
func isEXDEV(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
