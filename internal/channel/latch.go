package channel

import "sync/atomic"

// Latch 是一次性闩锁：同一页面上执行端被重复注入时，只允许第一次安装监听。
type Latch struct {
	done atomic.Bool
}

// Do 仅在闩锁首次被触发时执行 fn，并报告是否执行。
func (l *Latch) Do(fn func()) bool {
	if !l.done.CompareAndSwap(false, true) {
		return false
	}
	fn()
	return true
}

func (l *Latch) Done() bool { return l.done.Load() }
