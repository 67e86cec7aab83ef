package dom

import (
	"sync"
	"time"
)

// Ticker 是按固定间隔发出信号的 Watchable，用于“轮询直到成立”的等待。
type Ticker time.Duration

func (t Ticker) Watch() (<-chan struct{}, func()) {
	d := time.Duration(t)
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	ch := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		tk := time.NewTicker(d)
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return ch, func() { once.Do(func() { close(done) }) }
}
