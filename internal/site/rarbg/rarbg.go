// Package rarbg 描述 en.rarbg-official.com 详情页的抽取方式。
package rarbg

import (
	"time"

	"github.com/John-Robertt/MDM/internal/extract"
	"github.com/John-Robertt/MDM/internal/site"
)

const (
	Container     = ".modal-download .modal-content table"
	CoverSelector = "div#movie-poster > img"
)

// Plan：无触发器；标题/年份取详情区标题（桌面版优先，移动版兜底）；磁力与下载链接必须同时存在。
func Plan(o site.Options) site.Plan {
	return site.Plan{
		Kind:             site.KindRarbg,
		Container:        Container,
		ContainerTimeout: site.Or(o.ContainerTimeout, 12*time.Second),
		Normalizer: extract.TableNormalizer{
			Policy:         extract.BothLinksPolicy{},
			TitleSelectors: []string{"#movie-info h1", "#mobile-movie-info h1"},
			YearSelectors:  []string{"#movie-info h2", "#mobile-movie-info h2"},
			CoverSelector:  CoverSelector,
			Cover:          extract.ImageResolver{Deadline: o.CoverDeadline},
		},
	}
}
