// Package yinfans 描述 yinfans 详情页的抽取方式（磁力列表）。
package yinfans

import (
	"time"

	"github.com/John-Robertt/MDM/internal/extract"
	"github.com/John-Robertt/MDM/internal/site"
)

const CoverSelector = "#poster img"

func Plan(o site.Options) site.Plan {
	return site.Plan{
		Kind:             site.KindYinfans,
		Container:        extract.YinfansContainer,
		ContainerTimeout: site.Or(o.ContainerTimeout, 10*time.Second),
		Normalizer: extract.YinfansNormalizer{
			Policy:        extract.MagnetPolicy{},
			CoverSelector: CoverSelector,
			Cover:         extract.ImageResolver{Deadline: o.CoverDeadline},
		},
	}
}
