// Package douban 抽取豆瓣电影详情页的二级元数据（DoubanInfo）。
package douban

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/extract"
	"github.com/John-Robertt/MDM/internal/infra/cache"
)

const (
	// Namespace 是缓存命名空间。
	Namespace = "douban"

	DefaultTimeout = 30 * time.Second
)

var tracer = otel.Tracer("github.com/John-Robertt/MDM/internal/site/douban")

// Extractor 先查缓存，再等待 ld+json 出现后解析（失败走 DOM 兜底），成功后写回缓存。
type Extractor struct {
	// Cache 为 nil 时不使用缓存。
	Cache *cache.Store
	// Timeout 是等待 ld+json 的上限；<=0 时用 30s。
	Timeout time.Duration
}

func (e Extractor) Extract(ctx context.Context, p dom.Page) (domain.DoubanInfo, error) {
	ctx, span := tracer.Start(ctx, "douban.extract")
	defer span.End()

	u := p.URL()
	key := u.String()
	if sp, ok := domain.DoubanSubjectPath(u.Path); ok {
		key = sp
	}
	log := slog.With("url", u.String())

	if e.Cache != nil {
		var cached domain.DoubanInfo
		ok, err := e.Cache.ReadJSON(Namespace, key, &cached)
		if err != nil {
			log.WarnContext(ctx, "读取豆瓣缓存失败", "err", err)
		} else if ok {
			log.DebugContext(ctx, "命中豆瓣缓存", "key", key)
			return cached, nil
		}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// 等不到 ld+json 也继续：DOM 兜底可能仍然可用。
	if dom.AwaitElement(ctx, p, extract.LDJSONSelector, timeout) == nil {
		log.WarnContext(ctx, "等待 ld+json 超时，尝试 DOM 兜底", "timeout", timeout)
	}

	doc, err := p.Document()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.DoubanInfo{}, err
	}
	info, err := extract.ParseDouban(doc, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.DoubanInfo{}, err
	}

	if e.Cache != nil {
		if err := e.Cache.WriteJSON(Namespace, key, info); err != nil {
			log.WarnContext(ctx, "写入豆瓣缓存失败", "err", err)
		}
	}
	log.InfoContext(ctx, "豆瓣元数据", "title", info.Title, "date", info.DatePublished, "rating", info.Rating)
	return info, nil
}
