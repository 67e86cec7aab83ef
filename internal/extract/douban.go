package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MDM/internal/domain"
)

// LDJSONSelector 是豆瓣详情页结构化数据所在的 script 标签。
const LDJSONSelector = `script[type="application/ld+json"]`

var (
	// ErrNoDoubanPayload 表示页面没有 ld+json 或其结构不完整。
	ErrNoDoubanPayload = errors.New("豆瓣 ld+json 缺失或结构不完整")
	// ErrDoubanFallback 表示 DOM 兜底也拿不到标题。
	ErrDoubanFallback = errors.New("豆瓣 DOM 兜底解析失败")
)

type ldPayload struct {
	Name            string          `json:"name"`
	DatePublished   string          `json:"datePublished"`
	Image           json.RawMessage `json:"image"`
	URL             string          `json:"url"`
	AggregateRating *struct {
		RatingValue json.RawMessage `json:"ratingValue"`
	} `json:"aggregateRating"`
}

// ParseDouban 先解析 ld+json，失败后再走 DOM 兜底；两条路径串行，先成功者胜出。
func ParseDouban(doc *goquery.Document, pageURL *url.URL) (domain.DoubanInfo, error) {
	info, err := DoubanFromLDJSON(doc)
	if err == nil {
		return info, nil
	}
	info, ferr := DoubanFromDOM(doc, pageURL)
	if ferr != nil {
		return domain.DoubanInfo{}, errors.Join(err, ferr)
	}
	return info, nil
}

// DoubanFromLDJSON 解析页面内嵌的 schema.org Movie 数据。
func DoubanFromLDJSON(doc *goquery.Document) (domain.DoubanInfo, error) {
	script := doc.Find(LDJSONSelector).First()
	if script.Length() == 0 {
		return domain.DoubanInfo{}, ErrNoDoubanPayload
	}
	// 豆瓣的 ld+json 字符串里常带裸换行，按空白处理后再解析。
	raw := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(script.Text())

	var p ldPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.DoubanInfo{}, fmt.Errorf("%w：%v", ErrNoDoubanPayload, err)
	}
	if strings.TrimSpace(p.Name) == "" || p.AggregateRating == nil {
		return domain.DoubanInfo{}, ErrNoDoubanPayload
	}

	return domain.DoubanInfo{
		Title:         strings.TrimSpace(p.Name),
		DatePublished: strings.TrimSpace(p.DatePublished),
		Rating:        parseRating(p.AggregateRating.RatingValue),
		Image:         firstString(p.Image),
		URL:           strings.TrimSpace(p.URL),
	}, nil
}

// DoubanFromDOM 用固定选择器兜底；url 取页面路径。
func DoubanFromDOM(doc *goquery.Document, pageURL *url.URL) (domain.DoubanInfo, error) {
	title := strings.TrimSpace(doc.Find("h1 > span").First().Text())
	if title == "" {
		return domain.DoubanInfo{}, ErrDoubanFallback
	}
	date := strings.NewReplacer("(", "", ")", "").Replace(doc.Find("h1 > span.year").First().Text())
	rating, _ := strconv.ParseFloat(strings.TrimSpace(doc.Find("div.rating_self > strong.rating_num").First().Text()), 64)
	image, _ := doc.Find("div#mainpic img").First().Attr("src")

	path := ""
	if pageURL != nil {
		path = pageURL.Path
	}
	return domain.DoubanInfo{
		Title:         title,
		DatePublished: strings.TrimSpace(date),
		Rating:        rating,
		Image:         strings.TrimSpace(image),
		URL:           path,
	}, nil
}

// parseRating 接受数字或数字字符串；其它情况为 0。
func parseRating(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	return f
}

// firstString 接受字符串或字符串数组。
func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return strings.TrimSpace(arr[0])
	}
	return ""
}
