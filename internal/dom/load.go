package dom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

const maxPageBytes = 8 << 20

// HTTPStatusError 表示页面请求返回了非 2xx。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("页面请求失败：%s 状态码 %d", e.URL, e.StatusCode)
}

// NotHTMLError 表示响应内容不是 HTML。
type NotHTMLError struct {
	URL  string
	MIME string
}

func (e *NotHTMLError) Error() string {
	return fmt.Sprintf("响应不是 HTML：%s（%s）", e.URL, e.MIME)
}

// Load 通过 HTTP 获取页面并构造 MemPage。
//
// 加载后的页面对点击的默认响应：若命中的是带 href 的链接，则请求该地址并把响应 HTML
// 追加到 body 末尾（用于模态框内容按需加载的站点）；其他元素的点击是 no-op。
func Load(ctx context.Context, client *http.Client, rawURL string) (*MemPage, error) {
	body, final, err := fetch(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}
	p, err := NewMemPage(final, string(body))
	if err != nil {
		return nil, err
	}
	p.DefaultClick = followHref(client)
	return p, nil
}

func followHref(client *http.Client) ClickFunc {
	return func(ctx context.Context, p *MemPage, el *goquery.Selection) error {
		href, ok := el.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		ref, err := url.Parse(href)
		if err != nil {
			return err
		}
		target := p.URL().ResolveReference(ref)
		body, _, err := fetch(ctx, client, target.String())
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "点击后追加片段", "href", target.String(), "bytes", len(body))
		return p.AppendHTML("body", string(body))
	}
}

func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, err
	}
	if mt := mimetype.Detect(body); !isHTML(mt, resp.Header.Get("Content-Type")) {
		return nil, nil, &NotHTMLError{URL: rawURL, MIME: mt.String()}
	}
	return body, resp.Request.URL, nil
}

// isHTML 以内容嗅探为主；片段（无 <html> 前导）依赖 Content-Type 兜底。
func isHTML(mt *mimetype.MIME, contentType string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/html") || m.Is("application/xhtml+xml") {
			return true
		}
	}
	if mt.Is("text/plain") && strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	return false
}
