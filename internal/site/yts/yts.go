// Package yts 描述 YTS 详情页的抽取方式：下载表格在点击按钮后弹出的模态框中。
package yts

import (
	"time"

	"github.com/John-Robertt/MDM/internal/extract"
	"github.com/John-Robertt/MDM/internal/site"
)

const (
	Trigger       = "a.torrent-modal-download"
	Container     = ".modal-download .modal-content table"
	CoverSelector = "div#movie-poster > img"
)

// Plan：标题取 document.title（清洗站点后缀）；只保留 2160p/1080p 的 BLURAY。
func Plan(o site.Options) site.Plan {
	return site.Plan{
		Kind:             site.KindYTS,
		Trigger:          Trigger,
		TriggerTimeout:   8 * time.Second,
		Container:        Container,
		ContainerTimeout: site.Or(o.ContainerTimeout, 12*time.Second),
		Normalizer: extract.TableNormalizer{
			Policy:        extract.YTSPolicy,
			YearSelectors: []string{"#movie-info h2", "#mobile-movie-info h2"},
			CoverSelector: CoverSelector,
			Cover:         extract.ImageResolver{Deadline: o.CoverDeadline},
		},
	}
}
