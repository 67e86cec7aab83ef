package extract

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
)

// RecordNormalizer 把已定位的容器转换为 ExtractedRecord。
type RecordNormalizer interface {
	Normalize(ctx context.Context, p dom.Page, container *goquery.Selection) (domain.ExtractedRecord, error)
}

// TableNormalizer 是下载表格类站点的通用实现；站点差异全部以数据表达。
type TableNormalizer struct {
	Policy LinkPolicy

	// TitleSelectors 依次尝试；都为空时退回 document.title。
	TitleSelectors []string
	YearSelectors  []string

	// CoverSelector 为空表示不取封面。
	CoverSelector string
	Cover         ImageResolver
}

func (n TableNormalizer) Normalize(ctx context.Context, p dom.Page, container *goquery.Selection) (domain.ExtractedRecord, error) {
	doc, err := p.Document()
	if err != nil {
		return domain.ExtractedRecord{}, err
	}

	title := FirstText(doc.Selection, n.TitleSelectors...)
	if title == "" {
		title = p.Title()
	}

	rec := domain.ExtractedRecord{
		Title: SanitizeTitle(title),
		URL:   p.URL().String(),
		Year:  YearFromHeadings(doc.Selection, n.YearSelectors...),
		Links: ParseLinkRows(container, n.Policy),
	}
	if n.CoverSelector != "" {
		rec.CoverImage = n.Cover.Resolve(ctx, p, n.CoverSelector)
	}
	return rec, nil
}

// YinfansNormalizer 解析 yinfans 磁力列表；标题取 h1，年份取标题中的四位数字。
type YinfansNormalizer struct {
	Policy        LinkPolicy
	CoverSelector string
	Cover         ImageResolver
}

func (n YinfansNormalizer) Normalize(ctx context.Context, p dom.Page, container *goquery.Selection) (domain.ExtractedRecord, error) {
	doc, err := p.Document()
	if err != nil {
		return domain.ExtractedRecord{}, err
	}
	title := FirstText(doc.Selection, "h1")
	if title == "" {
		title = p.Title()
	}
	policy := n.Policy
	if policy == nil {
		policy = MagnetPolicy{}
	}
	rec := domain.ExtractedRecord{
		Title: SanitizeTitle(title),
		URL:   p.URL().String(),
		Year:  ParseYear(title),
		Links: YinfansLinks(ParseYinfans(container), policy),
	}
	if n.CoverSelector != "" {
		rec.CoverImage = n.Cover.Resolve(ctx, p, n.CoverSelector)
	}
	return rec, nil
}
