// Package dom 抽象“承载页面”：可查询的 DOM 快照、变更通知、点击与图片当前地址。
//
// 两种实现：MemPage（goquery 内存文档，HTTP 加载或测试构造）与 rodpage.Page（真实浏览器标签页）。
package dom

import (
	"context"
	"errors"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoElement 表示选择器没有命中任何元素。
var ErrNoElement = errors.New("元素不存在")

// Watchable 是可订阅变更通知的资源。
//
// Watch 返回的通道在一批变更后收到一次信号（多次变更可合并为一次）；
// stop 释放订阅，调用后通道不再收到信号。stop 可重复调用。
type Watchable interface {
	Watch() (changes <-chan struct{}, stop func())
}

// Page 是提取流程所需的最小页面能力。
type Page interface {
	Watchable

	URL() *url.URL
	// Title 返回 document.title（已去除首尾空白）。
	Title() string
	// Document 返回当前 DOM 的只读快照；调用方可任意遍历，不会与页面变更竞争。
	Document() (*goquery.Document, error)

	// Click 对首个命中元素执行原生点击。
	Click(ctx context.Context, selector string) error
	// DispatchClick 对首个命中元素派发合成 click 事件（原生点击失败时的后备）。
	DispatchClick(ctx context.Context, selector string) error
	// CurrentSrc 返回首个命中 img 元素由页面计算出的当前地址（可能为空）。
	CurrentSrc(ctx context.Context, selector string) (string, error)
}
