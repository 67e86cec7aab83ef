package app

import (
	"sort"

	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/site"
	"github.com/John-Robertt/MDM/internal/urlkey"
)

// GroupTargets 把清单条目按规范化 URL 合并为 WorkItem，并识别页面类型。
//
// - 地址不合法或页面类型不受支持的条目进入 rejected（每条输入各自一条）
// - 同一 URL 多次出现时合并；MovieID 取第一个非空值
// - items 按 URL 字典序稳定排序
func GroupTargets(targets []domain.Target, router site.Router) (items []domain.WorkItem, rejected []domain.Rejected) {
	index := make(map[string]int, len(targets))
	items = make([]domain.WorkItem, 0, len(targets))

	for _, t := range targets {
		key, err := urlkey.Canonical(t.URL)
		if err != nil {
			rejected = append(rejected, domain.Rejected{Target: t, Kind: domain.RejectInvalidURL, Reason: err.Error()})
			continue
		}

		kind := router.RouteString(key)
		if kind == site.KindUnsupported || kind == site.KindMovieDB {
			rejected = append(rejected, domain.Rejected{Target: t, Kind: domain.RejectUnsupported, Reason: "不支持的页面：" + key})
			continue
		}

		if idx, ok := index[key]; ok {
			it := &items[idx]
			it.Sources = append(it.Sources, t.Source)
			if it.MovieID == "" {
				it.MovieID = t.MovieID
			}
			continue
		}
		index[key] = len(items)
		items = append(items, domain.WorkItem{
			URL:     key,
			Kind:    string(kind),
			MovieID: t.MovieID,
			Sources: []string{t.Source},
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].URL < items[j].URL })
	return items, rejected
}
