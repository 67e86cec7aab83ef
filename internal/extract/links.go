package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MDM/internal/domain"
)

// MinCells 是有效数据行的最少单元格数：quality, source, size, download, magnet。
const MinCells = 5

// LinkPolicy 决定一行下载链接是否进入记录；由站点选择。
type LinkPolicy interface {
	Include(l domain.LinkInfo) bool
}

// AllowListPolicy：质量在白名单内，且来源等于指定标记（大小写不敏感）。
type AllowListPolicy struct {
	Qualities []string
	Source    string
}

func (p AllowListPolicy) Include(l domain.LinkInfo) bool {
	if !strings.EqualFold(strings.TrimSpace(l.Source), p.Source) {
		return false
	}
	for _, q := range p.Qualities {
		if l.Quality == q {
			return true
		}
	}
	return false
}

// BothLinksPolicy：下载地址与磁力链接必须同时存在。
type BothLinksPolicy struct{}

func (BothLinksPolicy) Include(l domain.LinkInfo) bool {
	return l.Download != nil && l.Magnet != nil
}

// MagnetPolicy：必须是 magnet: 链接；在线观看条目排除。
type MagnetPolicy struct{}

func (MagnetPolicy) Include(l domain.LinkInfo) bool {
	if l.Magnet == nil || !strings.HasPrefix(strings.ToLower(*l.Magnet), "magnet:") {
		return false
	}
	return !strings.Contains(l.Size, "在线观看")
}

// YTSPolicy 只保留 2160p/1080p 的 BLURAY 行。
var YTSPolicy = AllowListPolicy{Qualities: []string{"2160p", "1080p"}, Source: "BLURAY"}

// ParseLinkRows 遍历 container 内的表格行并按 policy 过滤。
//
// 单元格不足 MinCells 的行跳过（不是错误）；被 policy 排除的行静默丢弃；输出顺序等于行顺序。
func ParseLinkRows(container *goquery.Selection, policy LinkPolicy) []domain.LinkInfo {
	out := make([]domain.LinkInfo, 0, 8)
	if container == nil {
		return out
	}
	rows := container.Find("tbody tr")
	if rows.Length() == 0 {
		rows = container.Find("tr")
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < MinCells {
			return
		}
		l := domain.LinkInfo{
			Quality:  strings.TrimSpace(cells.Eq(0).Text()),
			Source:   strings.ToUpper(strings.TrimSpace(cells.Eq(1).Text())),
			Size:     strings.TrimSpace(cells.Eq(2).Text()),
			Download: firstHref(cells.Eq(3)),
			Magnet:   firstHref(cells.Eq(4)),
		}
		if policy != nil && !policy.Include(l) {
			return
		}
		out = append(out, l)
	})
	return out
}

func firstHref(cell *goquery.Selection) *string {
	href, ok := cell.Find("a[href]").First().Attr("href")
	if !ok {
		return nil
	}
	return domain.StrPtr(strings.TrimSpace(href))
}
