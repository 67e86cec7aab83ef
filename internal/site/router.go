package site

import (
	"net/url"
	"strings"
)

// Router 按 hostname/pathname 识别页面类型。
// Origins 是入库服务自身的 origin（例如 https://ealon-movie.vercel.app），命中即 movie-db。
type Router struct {
	Origins []string
}

func (r Router) Route(u *url.URL) Kind {
	if u == nil {
		return KindUnsupported
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, o := range r.Origins {
		if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return KindMovieDB
		}
	}

	host := strings.ToLower(u.Hostname())
	path := u.Path
	switch {
	case host == "movie.douban.com" && strings.HasPrefix(path, "/subject/"):
		return KindDouban
	case strings.Contains(host, "yinfans") && strings.HasPrefix(path, "/movie/"):
		return KindYinfans
	case host == "en.rarbg-official.com" && hasAnyPrefix(path, "/movies/", "/seasons/", "/episodes/"):
		return KindRarbg
	case isYTSHost(host) && strings.HasPrefix(path, "/movies/"):
		return KindYTS
	}
	return KindUnsupported
}

// RouteString 解析失败视为 unsupported。
func (r Router) RouteString(raw string) Kind {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return KindUnsupported
	}
	return r.Route(u)
}

func isYTSHost(host string) bool {
	return strings.HasPrefix(strings.TrimPrefix(host, "www."), "yts.")
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
