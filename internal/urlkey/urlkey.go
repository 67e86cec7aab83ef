// Package urlkey 把清单中的地址收敛为去重用的规范形式。
package urlkey

import (
	"net/url"
	"strings"

	"github.com/John-Robertt/MDM/internal/domain"
)

type InvalidError struct {
	// Kind: "empty" | "parse" | "scheme"
	Kind string
	Raw  string
}

func (e *InvalidError) Error() string {
	switch e.Kind {
	case "empty":
		return "地址为空"
	case "scheme":
		return "只支持 http/https 地址：" + e.Raw
	default:
		return "无法解析地址：" + e.Raw
	}
}

// Canonical 返回规范化地址；同一页面的不同写法得到相同结果。
//
// 规则：
// - 只接受 http/https，主机名小写，去掉 fragment 与默认端口
// - 豆瓣详情页收敛为 https://movie.douban.com/subject/<id>/（丢弃 query）
// - 其它站点保留 query，路径末尾的 "/" 去掉（根路径除外）
func Canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &InvalidError{Kind: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidError{Kind: "parse", Raw: raw}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &InvalidError{Kind: "scheme", Raw: raw}
	}
	if u.Host == "" {
		return "", &InvalidError{Kind: "parse", Raw: raw}
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	if host == "movie.douban.com" {
		if p, ok := domain.DoubanSubjectPath(u.Path); ok {
			return "https://movie.douban.com" + p + "/", nil
		}
	}

	out := url.URL{Scheme: scheme, Host: host, Path: u.Path, RawQuery: u.RawQuery}
	if len(out.Path) > 1 {
		out.Path = strings.TrimRight(out.Path, "/")
	}
	return out.String(), nil
}
