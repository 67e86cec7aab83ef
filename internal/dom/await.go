package dom

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Await 在 timeout 内等待 check 成立。
//
// 规则：
// - check 立即成立：直接返回，不订阅、不起定时器
// - 否则订阅 w 的变更，每批变更后重新 check，首次成立即返回
// - 超时或 ctx 取消：返回 (零值, false)
// 无论哪条路径，订阅与定时器都会在返回前释放，且只会有一次结果。
func Await[T any](ctx context.Context, w Watchable, check func() (T, bool), timeout time.Duration) (T, bool) {
	var zero T
	if v, ok := check(); ok {
		return v, true
	}
	if ctx.Err() != nil {
		return zero, false
	}

	changes, stop := w.Watch()
	defer stop()

	// 订阅建立前后可能恰好发生变更：补一次检查。
	if v, ok := check(); ok {
		return v, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, false
		case <-timer.C:
			return zero, false
		case _, open := <-changes:
			if !open {
				return zero, false
			}
			if v, ok := check(); ok {
				return v, true
			}
		}
	}
}

// AwaitElement 等待 selector 在整个文档中出现，返回首个命中元素；超时返回 nil。
func AwaitElement(ctx context.Context, p Page, selector string, timeout time.Duration) *goquery.Selection {
	return AwaitElementIn(ctx, p, "", selector, timeout)
}

// AwaitElementIn 与 AwaitElement 相同，但只在 root 命中的首个元素之内查找；root 为空表示整个文档。
func AwaitElementIn(ctx context.Context, p Page, root, selector string, timeout time.Duration) *goquery.Selection {
	sel, _ := Await(ctx, p, func() (*goquery.Selection, bool) {
		return Query(p, root, selector)
	}, timeout)
	return sel
}

// Query 在当前快照上做一次性查询（不等待）。
func Query(p Page, root, selector string) (*goquery.Selection, bool) {
	doc, err := p.Document()
	if err != nil || doc == nil {
		return nil, false
	}
	scope := doc.Selection
	if root != "" {
		scope = doc.Find(root).First()
		if scope.Length() == 0 {
			return nil, false
		}
	}
	s := scope.Find(selector).First()
	if s.Length() == 0 {
		return nil, false
	}
	return s, true
}
