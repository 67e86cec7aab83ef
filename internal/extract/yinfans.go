package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MDM/internal/domain"
)

const (
	// YinfansContainer 是 yinfans 详情页磁力列表所在的表格。
	YinfansContainer = "#cili"
	// YinfansSource 是 yinfans 条目转换为 LinkInfo 时的来源标记。
	YinfansSource = "YINFANS"
)

// ParseYinfans 解析磁力列表。每行的首个链接即条目：
// <b> 为标题（缺失时取链接文本），第一/第二个 span.label 依次为质量与大小。
func ParseYinfans(container *goquery.Selection) []domain.YinfansItem {
	out := make([]domain.YinfansItem, 0, 8)
	if container == nil {
		return out
	}
	container.Find("tr").Each(func(_ int, row *goquery.Selection) {
		a := row.Find("a[href]").First()
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		labels := a.Find("span.label")
		if labels.Length() == 0 {
			labels = row.Find("span.label")
		}
		title := strings.TrimSpace(a.Find("b").First().Text())
		if title == "" {
			c := a.Clone()
			c.Find("span.label").Remove()
			title = strings.TrimSpace(c.Text())
		}
		out = append(out, domain.YinfansItem{
			Link:    href,
			Quality: strings.TrimSpace(labels.Eq(0).Text()),
			Size:    strings.TrimSpace(labels.Eq(1).Text()),
			Title:   strings.Join(strings.Fields(title), " "),
		})
	})
	return out
}

// YinfansLinks 把条目转换为 LinkInfo 并按 policy 过滤，保持原顺序。
func YinfansLinks(items []domain.YinfansItem, policy LinkPolicy) []domain.LinkInfo {
	out := make([]domain.LinkInfo, 0, len(items))
	for _, it := range items {
		l := domain.LinkInfo{
			Quality: it.Quality,
			Size:    it.Size,
			Source:  YinfansSource,
			Magnet:  domain.StrPtr(it.Link),
		}
		if policy != nil && !policy.Include(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}
