package domain

import (
	"regexp"
	"strings"
)

// MovieID 是入库记录的主键（由入库端生成，形如 cuid / uuid）。
//
// 约束：只允许字母、数字、'-'、'_'；宁可拒绝，也不把可疑输入拼进 URL。
type MovieID string

var movieIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ParseMovieID 校验并解析用户输入的 MovieID（会先去掉首尾空白）。
func ParseMovieID(s string) (MovieID, bool) {
	s = strings.TrimSpace(s)
	if !movieIDRE.MatchString(s) {
		return "", false
	}
	return MovieID(s), true
}
