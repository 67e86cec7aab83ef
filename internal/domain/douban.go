package domain

import (
	"regexp"
	"strconv"
)

// DoubanInfo 是豆瓣详情页的二级元数据。
//
// 约束：无论来自 ld+json 还是 DOM 兜底，形态必须一致。
// DatePublished 保留原始字符串（可能只有年份）。
type DoubanInfo struct {
	Title         string  `json:"title"`
	DatePublished string  `json:"datePublished"`
	Rating        float64 `json:"rating"`
	Image         string  `json:"image"`
	URL           string  `json:"url"`
}

var (
	doubanSubjectRE = regexp.MustCompile(`/subject/\d+`)
	fourDigitRE     = regexp.MustCompile(`\d{4}`)
)

// DoubanSubjectPath 把任意豆瓣地址收敛为 "/subject/<id>"；不匹配时返回 false。
func DoubanSubjectPath(u string) (string, bool) {
	m := doubanSubjectRE.FindString(u)
	if m == "" {
		return "", false
	}
	return m, true
}

// Year 从 DatePublished 中取第一个四位数字；取不到返回 0。
func (d DoubanInfo) Year() int {
	m := fourDigitRE.FindString(d.DatePublished)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}
