package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var yearRE = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

// FirstText 返回 selectors 中第一个非空元素文本（trim 后）。
func FirstText(doc *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// YearFromHeadings 依次查看 selectors，返回第一个含四位年份的标题中的年份；
// 都没有时返回 nil（未知年份）。
func YearFromHeadings(doc *goquery.Selection, selectors ...string) *int {
	for _, sel := range selectors {
		if y := ParseYear(doc.Find(sel).First().Text()); y != nil {
			return y
		}
	}
	return nil
}

// ParseYear 从任意文本中取出第一个独立的四位数字。
func ParseYear(s string) *int {
	m := yearRE.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
