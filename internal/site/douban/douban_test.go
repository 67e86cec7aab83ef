package douban

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/infra/cache"
)

const ld = `<script type="application/ld+json">{"name":"霸王别姬","datePublished":"1993-01-01","image":"https://img/x.jpg","url":"/subject/1291546/","aggregateRating":{"ratingValue":"9.6"}}</script>`

func TestExtractor_WaitsForLDJSONAndCaches(t *testing.T) {
	st := cache.New(t.TempDir(), false)
	p := dom.MustMemPage("https://movie.douban.com/subject/1291546/?from=showing", `<head></head><body></body>`)
	time.AfterFunc(20*time.Millisecond, func() { _ = p.AppendHTML("head", ld) })

	e := Extractor{Cache: &st, Timeout: time.Second}
	info, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "霸王别姬", info.Title)
	require.Equal(t, 9.6, info.Rating)

	// 页面内容变化后仍返回缓存（同一 subject）。
	p.Mutate(func(doc *goquery.Document) { doc.Find("script").Remove() })
	other := dom.MustMemPage("https://movie.douban.com/subject/1291546/", `<body></body>`)
	info2, err := e.Extract(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, info, info2)
}

func TestExtractor_FallbackAfterTimeout(t *testing.T) {
	p := dom.MustMemPage("https://movie.douban.com/subject/1/", `<h1><span>活着</span><span class="year">(1994)</span></h1>`)

	info, err := Extractor{Timeout: 20 * time.Millisecond}.Extract(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "活着", info.Title)
	require.Equal(t, "/subject/1/", info.URL)
}

func TestExtractor_BothPathsFail(t *testing.T) {
	p := dom.MustMemPage("https://movie.douban.com/subject/1/", `<p>验证码</p>`)
	_, err := Extractor{Timeout: 10 * time.Millisecond}.Extract(context.Background(), p)
	require.Error(t, err)
}
