package harvest

import (
	"time"

	"github.com/John-Robertt/MDM/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - harvest 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(opt Options)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个 URL 处理完成时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnItemStart 在 worker 取到某个 URL 时调用（用于展示进行中的条目）。
	OnItemStart(url string)
}
