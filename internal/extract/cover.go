package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
)

const (
	DefaultPlaceholder   = "/img/default_thumbnail.svg"
	DefaultCoverInterval = 300 * time.Millisecond
	DefaultCoverDeadline = 8 * time.Second
)

// ImageResolver 在截止时间内等待懒加载封面解析出真实地址。
//
// 候选地址优先级固定：data-src > src > 页面计算的当前地址。
// 候选为空或包含 Placeholder 即视为占位图。
type ImageResolver struct {
	Placeholder string
	Interval    time.Duration
	Deadline    time.Duration
}

func (r ImageResolver) withDefaults() ImageResolver {
	if r.Placeholder == "" {
		r.Placeholder = DefaultPlaceholder
	}
	if r.Interval <= 0 {
		r.Interval = DefaultCoverInterval
	}
	if r.Deadline <= 0 {
		r.Deadline = DefaultCoverDeadline
	}
	return r
}

// Resolve 返回 selector 命中的 img 的封面信息。
//
// - 页面上没有该 img：返回 nil
// - 截止前得到非占位地址：立即返回
// - 截止（或 ctx 取消）：返回最后一次看到的候选（可能仍是占位图），不会返回 nil
func (r ImageResolver) Resolve(ctx context.Context, p dom.Page, selector string) *domain.CoverImage {
	r = r.withDefaults()

	img, ok := dom.Query(p, "", selector)
	if !ok {
		return nil
	}
	title, _ := img.Attr("title")
	alt, _ := img.Attr("alt")

	last := ""
	candidate := func() (string, bool) {
		last = r.candidate(ctx, p, selector, last)
		return last, !r.isPlaceholder(last)
	}

	src, ok := dom.Await(ctx, dom.Ticker(r.Interval), candidate, r.Deadline)
	if !ok {
		src = last
		slog.DebugContext(ctx, "封面在截止前未解析出真实地址", "selector", selector, "last", last)
	}

	// Src 原样保留最后的候选，空串也不映射为 nil；nil 只表示页面上没有 img。
	return &domain.CoverImage{
		Src:   &src,
		Title: domain.StrPtr(SanitizeTitle(title)),
		Alt:   domain.StrPtr(SanitizeTitle(alt)),
	}
}

// candidate 计算一次候选地址；查询失败时保留上一次的值。
func (r ImageResolver) candidate(ctx context.Context, p dom.Page, selector, prev string) string {
	img, ok := dom.Query(p, "", selector)
	if !ok {
		return prev
	}
	if v := strings.TrimSpace(img.AttrOr("data-src", "")); v != "" {
		return v
	}
	if v := strings.TrimSpace(img.AttrOr("src", "")); v != "" {
		return v
	}
	cur, err := p.CurrentSrc(ctx, selector)
	if err != nil {
		return prev
	}
	return strings.TrimSpace(cur)
}

func (r ImageResolver) isPlaceholder(src string) bool {
	return src == "" || strings.Contains(src, r.Placeholder)
}
