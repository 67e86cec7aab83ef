// Package extract 把站点 DOM 规范化为 domain 记录：下载表格、标题、年份、封面与豆瓣元数据。
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var boilerplateRE = regexp.MustCompile(`(?i)(- YTS - Download Movie Torrent - Yify Movies)|(YIFY Torrent)|(On EN\.RARBG-OFFICIAL\.COM)`)

// SanitizeTitle 去除站点固定后缀（大小写不敏感），做 NFC 规范化并 trim。
//
// 反复应用直到不再变化，因此 SanitizeTitle(SanitizeTitle(s)) == SanitizeTitle(s)
// （删除一个后缀可能让两侧拼出新的后缀）。
func SanitizeTitle(s string) string {
	for {
		next := strings.TrimSpace(norm.NFC.String(boilerplateRE.ReplaceAllString(s, "")))
		if next == s {
			return s
		}
		s = next
	}
}
