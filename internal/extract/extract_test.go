package extract

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
)

func fixture(t *testing.T, name, pageURL string) *dom.MemPage {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return dom.MustMemPage(pageURL, string(b))
}

func doc(t *testing.T, p dom.Page) *goquery.Document {
	t.Helper()
	d, err := p.Document()
	require.NoError(t, err)
	return d
}

func TestSanitizeTitle(t *testing.T) {
	cases := map[string]string{
		"Inception (2010) - YTS - Download Movie Torrent - Yify Movies": "Inception (2010)",
		"Inception yify torrent":                 "Inception",
		"  Inception on en.rarbg-official.com  ": "Inception",
		"YIFY YIFY TorrentTorrent":               "",
		"Cafe\u0301":                            "Caf\u00e9",
		"":                                       "",
	}
	for in, want := range cases {
		require.Equalf(t, want, SanitizeTitle(in), "输入 %q", in)
	}
}

func TestSanitizeTitle_Idempotent(t *testing.T) {
	inputs := []string{
		"Movie YIFY Torrent",
		"YIFY YIFY TorrentTorrent x",
		"- YTS - Download Movie Torrent - - YTS - Download Movie Torrent - Yify MoviesYify Movies",
		"On EN.RARBG-OFFICIAL.COM On EN.RARBG-OFFICIAL.COM",
		"Amélie  ",
		"plain",
	}
	for _, in := range inputs {
		once := SanitizeTitle(in)
		require.Equalf(t, once, SanitizeTitle(once), "输入 %q", in)
	}
}

func TestParseLinkRows_PoliciesHoldForEveryLink(t *testing.T) {
	p := fixture(t, "rarbg_movie.html", "https://en.rarbg-official.com/movies/inception")
	container := doc(t, p).Find(".modal-download .modal-content table").First()

	policies := []LinkPolicy{YTSPolicy, BothLinksPolicy{}}
	for _, policy := range policies {
		for _, l := range ParseLinkRows(container, policy) {
			require.Truef(t, policy.Include(l), "%T 放入了不满足条件的行：%+v", policy, l)
		}
	}

	both := ParseLinkRows(container, BothLinksPolicy{})
	require.Len(t, both, 2)
	require.Equal(t, "2160p", both[0].Quality)
	require.Equal(t, "BLURAY", both[0].Source)
	require.Equal(t, "WEB", both[1].Source, "source 应 trim 并转大写")
	require.Equal(t, "magnet:?xt=urn:btih:3", domain.Str(both[1].Magnet))

	yts := ParseLinkRows(container, YTSPolicy)
	require.Len(t, yts, 1)
	require.Equal(t, "20.1 GB", yts[0].Size)

	all := ParseLinkRows(container, nil)
	require.Len(t, all, 3, "不足 5 个单元格的行应跳过")
	require.Nil(t, all[1].Magnet)
}

func TestParseLinkRows_ImplicitTbody(t *testing.T) {
	p := dom.MustMemPage("", `<table><tr><td>1080p</td><td>BluRay</td><td>1 GB</td><td><a href="d">d</a></td><td><a href="m">m</a></td></tr></table>`)
	rows := ParseLinkRows(doc(t, p).Find("table"), YTSPolicy)
	require.Len(t, rows, 1)
}

func TestMagnetPolicy(t *testing.T) {
	m := "magnet:?xt=1"
	h := "https://x"
	require.True(t, MagnetPolicy{}.Include(domain.LinkInfo{Magnet: &m, Size: "1GB"}))
	require.False(t, MagnetPolicy{}.Include(domain.LinkInfo{Magnet: &m, Size: "在线观看"}))
	require.False(t, MagnetPolicy{}.Include(domain.LinkInfo{Magnet: &h}))
	require.False(t, MagnetPolicy{}.Include(domain.LinkInfo{}))
}

func TestYearFromHeadings(t *testing.T) {
	p := dom.MustMemPage("", `<div id="movie-info"><h2></h2></div><div id="mobile-movie-info"><h2>Released 2019</h2></div>`)
	d := doc(t, p)

	y := YearFromHeadings(d.Selection, "#movie-info h2", "#mobile-movie-info h2")
	require.NotNil(t, y)
	require.Equal(t, 2019, *y)

	require.Nil(t, YearFromHeadings(d.Selection, "#nope"))
	require.Nil(t, ParseYear("12345"))
	require.Equal(t, 1994, *ParseYear("(1994)"))
}

func TestImageResolver_ResolvesWhenSourceArrives(t *testing.T) {
	p := dom.MustMemPage("", `<div id="movie-poster"><img src="/img/default_thumbnail.svg" title="X YIFY Torrent"></div>`)
	time.AfterFunc(40*time.Millisecond, func() {
		p.SetAttr("div#movie-poster > img", "src", "https://img.example/real.jpg")
	})

	r := ImageResolver{Interval: 10 * time.Millisecond, Deadline: 2 * time.Second}
	start := time.Now()
	c := r.Resolve(context.Background(), p, "div#movie-poster > img")

	require.NotNil(t, c)
	require.Equal(t, "https://img.example/real.jpg", domain.Str(c.Src))
	require.Equal(t, "X", domain.Str(c.Title))
	require.Less(t, time.Since(start), time.Second)
}

func TestImageResolver_DeadlineReturnsLastCandidate(t *testing.T) {
	p := dom.MustMemPage("", `<div id="movie-poster"><img src="https://cdn.example/img/default_thumbnail.svg" alt="A"></div>`)

	r := ImageResolver{Interval: 5 * time.Millisecond, Deadline: 40 * time.Millisecond}
	start := time.Now()
	c := r.Resolve(context.Background(), p, "div#movie-poster > img")

	require.NotNil(t, c, "截止后应返回结构而不是 nil")
	require.True(t, strings.Contains(domain.Str(c.Src), DefaultPlaceholder))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	require.Equal(t, "A", domain.Str(c.Alt))
}

func TestImageResolver_PrecedenceAndMissing(t *testing.T) {
	p := dom.MustMemPage("", `<div id="movie-poster"><img data-src="https://a/lazy.jpg" src="https://a/plain.jpg"></div><div id="x"><img></div>`)
	r := ImageResolver{Interval: 5 * time.Millisecond, Deadline: 50 * time.Millisecond}

	c := r.Resolve(context.Background(), p, "div#movie-poster > img")
	require.Equal(t, "https://a/lazy.jpg", domain.Str(c.Src))

	p.SetCurrentSrc("div#x > img", "https://a/computed.jpg")
	c = r.Resolve(context.Background(), p, "div#x > img")
	require.Equal(t, "https://a/computed.jpg", domain.Str(c.Src))

	require.Nil(t, r.Resolve(context.Background(), p, "div#none > img"))
}

func TestParseDouban_LDJSON(t *testing.T) {
	p := fixture(t, "douban_ldjson.html", "https://movie.douban.com/subject/1292052/")
	info, err := ParseDouban(doc(t, p), p.URL())
	require.NoError(t, err)

	want := domain.DoubanInfo{
		Title:         "肖申克的救赎 The Shawshank Redemption",
		DatePublished: "1994-09-10",
		Rating:        9.7,
		Image:         "https://img.example/p480747492.jpg",
		URL:           "/subject/1292052/",
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("DoubanInfo 不一致 (-want +got):\n%s", diff)
	}
}

func TestParseDouban_FallbackToDOM(t *testing.T) {
	p := fixture(t, "douban_fallback.html", "https://movie.douban.com/subject/1291546/")
	d := doc(t, p)

	_, err := DoubanFromLDJSON(d)
	require.ErrorIs(t, err, ErrNoDoubanPayload)

	info, err := ParseDouban(d, p.URL())
	require.NoError(t, err)
	require.Equal(t, "霸王别姬", info.Title)
	require.Equal(t, "1993", info.DatePublished)
	require.Equal(t, 9.6, info.Rating)
	require.Equal(t, "https://img.example/p2561716440.jpg", info.Image)
	require.Equal(t, "/subject/1291546/", info.URL)
}

func TestParseDouban_BothFail(t *testing.T) {
	u, _ := url.Parse("https://movie.douban.com/subject/1/")
	p := dom.MustMemPage(u.String(), `<html><body><p>blocked</p></body></html>`)
	_, err := ParseDouban(doc(t, p), u)
	require.ErrorIs(t, err, ErrNoDoubanPayload)
	require.ErrorIs(t, err, ErrDoubanFallback)
}

func TestTableNormalizer_RARBG(t *testing.T) {
	p := fixture(t, "rarbg_movie.html", "https://en.rarbg-official.com/movies/inception")
	container := doc(t, p).Find(".modal-download .modal-content table").First()

	n := TableNormalizer{
		Policy:         BothLinksPolicy{},
		TitleSelectors: []string{"#movie-info h1", "#mobile-movie-info h1"},
		YearSelectors:  []string{"#movie-info h2", "#mobile-movie-info h2"},
		CoverSelector:  "div#movie-poster > img",
		Cover:          ImageResolver{Interval: 5 * time.Millisecond, Deadline: 50 * time.Millisecond},
	}
	rec, err := n.Normalize(context.Background(), p, container)
	require.NoError(t, err)

	require.Equal(t, "Inception", rec.Title)
	require.Equal(t, 2010, *rec.Year)
	require.Equal(t, "https://en.rarbg-official.com/movies/inception", rec.URL)
	require.Len(t, rec.Links, 2)
	require.Equal(t, "https://img.example/inception.jpg", domain.Str(rec.CoverImage.Src))
	require.Equal(t, "Inception", domain.Str(rec.CoverImage.Title))
}

func TestTableNormalizer_DocumentTitleFallback(t *testing.T) {
	p := dom.MustMemPage("https://yts.example/movies/x", `<title>Heat (1995) - YTS - Download Movie Torrent - Yify Movies</title><table></table>`)
	rec, err := TableNormalizer{Policy: YTSPolicy}.Normalize(context.Background(), p, doc(t, p).Find("table"))
	require.NoError(t, err)
	require.Equal(t, "Heat (1995)", rec.Title)
	require.Nil(t, rec.Year)
	require.Nil(t, rec.CoverImage)
	require.Empty(t, rec.Links)
}

func TestYinfans(t *testing.T) {
	p := fixture(t, "yinfans_movie.html", "https://www.yinfans.me/movie/12345")
	container := doc(t, p).Find(YinfansContainer).First()

	items := ParseYinfans(container)
	require.Len(t, items, 3)
	require.Equal(t, domain.YinfansItem{
		Link:    "magnet:?xt=urn:btih:aaa",
		Quality: "4K",
		Size:    "58.21GB",
		Title:   "Inception.2010.2160p.UHD.BluRay",
	}, items[0])

	rec, err := YinfansNormalizer{CoverSelector: "#poster img"}.Normalize(context.Background(), p, container)
	require.NoError(t, err)
	require.Equal(t, "盗梦空间 Inception (2010)", rec.Title)
	require.Equal(t, 2010, *rec.Year)
	require.Len(t, rec.Links, 2, "在线观看与非磁力条目应被排除")
	require.Equal(t, YinfansSource, rec.Links[1].Source)
	require.Equal(t, "https://img.example/yinfans-inception.jpg", domain.Str(rec.CoverImage.Src))
}

func TestImageResolver_EmptyCandidateStaysEmptyString(t *testing.T) {
	p := dom.MustMemPage("", `<div id="movie-poster"><img title="T"></div>`)
	r := ImageResolver{Interval: 5 * time.Millisecond, Deadline: 20 * time.Millisecond}

	c := r.Resolve(context.Background(), p, "div#movie-poster > img")
	require.NotNil(t, c)
	require.NotNil(t, c.Src, "img 存在时 src 应为最后的候选（空串），而不是 null")
	require.Equal(t, "", *c.Src)

	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.Contains(t, string(b), `"src":""`)
}
