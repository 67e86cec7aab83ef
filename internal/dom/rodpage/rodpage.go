// Package rodpage 用 go-rod 驱动真实浏览器标签页实现 dom.Page。
//
// 浏览器没有可跨进程订阅的 DOM 变更事件，这里用固定间隔的轮询信号代替：
// 每个 tick 视为“一批变更”，由调用方重新查询快照。
package rodpage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/John-Robertt/MDM/internal/dom"
)

const defaultPollInterval = 200 * time.Millisecond

// Page 包装一个 rod 标签页。
type Page struct {
	page *rod.Page
	// PollInterval 是 Watch 的信号间隔；<=0 时用默认 200ms。
	PollInterval time.Duration
}

var _ dom.Page = (*Page)(nil)

// Browser 持有一个浏览器连接；Close 同时结束由 Launch 启动的本地进程。
type Browser struct {
	b *rod.Browser
	l *launcher.Launcher
}

// Launch 启动本地无头 Chromium（controlURL 为空时）或连接已有实例。
func Launch(ctx context.Context, controlURL string, headless bool) (*Browser, error) {
	var l *launcher.Launcher
	if strings.TrimSpace(controlURL) == "" {
		l = launcher.New().Headless(headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("启动浏览器失败：%w", err)
		}
		controlURL = u
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("连接浏览器失败：%w", err)
	}
	return &Browser{b: b, l: l}, nil
}

func (b *Browser) Close() error {
	err := b.b.Close()
	if b.l != nil {
		b.l.Kill()
	}
	return err
}

// Open 新建标签页并等待 load 事件。
func (b *Browser) Open(ctx context.Context, rawURL string) (*Page, error) {
	p, err := b.b.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("打开页面失败：%w", err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("等待页面加载失败：%w", err)
	}
	return &Page{page: p}, nil
}

// Cookie 返回浏览器中 baseURL 下名为 name 的 cookie 值（不存在时为空串）。
func (b *Browser) Cookie(baseURL, name string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	cookies, err := b.b.GetCookies()
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	for _, c := range cookies {
		if c.Name != name {
			continue
		}
		d := strings.TrimPrefix(c.Domain, ".")
		if d == host || strings.HasSuffix(host, "."+d) {
			return c.Value, nil
		}
	}
	return "", nil
}

func (p *Page) Close() error { return p.page.Close() }

func (p *Page) URL() *url.URL {
	info, err := p.page.Info()
	if err != nil {
		return &url.URL{Scheme: "about", Opaque: "blank"}
	}
	u, err := url.Parse(info.URL)
	if err != nil {
		return &url.URL{Scheme: "about", Opaque: "blank"}
	}
	return u
}

func (p *Page) Title() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(info.Title)
}

func (p *Page) Document() (*goquery.Document, error) {
	h, err := p.page.HTML()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(h))
	if err != nil {
		return nil, err
	}
	doc.Url = p.URL()
	return doc, nil
}

func (p *Page) element(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w：%s", dom.ErrNoElement, selector)
	}
	return el, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *Page) DispatchClick(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true}))`)
	return err
}

func (p *Page) CurrentSrc(ctx context.Context, selector string) (string, error) {
	el, err := p.element(ctx, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Property("currentSrc")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.String(), nil
}

func (p *Page) Watch() (<-chan struct{}, func()) {
	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return dom.Ticker(interval).Watch()
}
