package dom

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ClickFunc 模拟页面脚本对点击的响应；el 是命中的元素（快照）。
type ClickFunc func(ctx context.Context, p *MemPage, el *goquery.Selection) error

// MemPage 是基于 goquery 的内存页面。
//
// 所有修改都经由 Mutate/AppendHTML 进行，并在修改后通知全部订阅者；
// Document 返回按版本缓存的快照，读写互不干扰。
type MemPage struct {
	mu      sync.RWMutex
	u       *url.URL
	doc     *goquery.Document
	version uint64

	snap    *goquery.Document
	snapVer uint64

	watchers map[int]chan struct{}
	nextID   int

	onClick    map[string]ClickFunc
	onDispatch map[string]ClickFunc
	// DefaultClick 处理没有注册专用处理器的点击；为 nil 时点击是 no-op。
	DefaultClick ClickFunc

	currentSrc map[string]string
}

// NewMemPage 解析 HTML 构造页面；u 可为 nil（视为 about:blank）。
func NewMemPage(u *url.URL, htmlText string) (*MemPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &url.URL{Scheme: "about", Opaque: "blank"}
	}
	doc.Url = u
	return &MemPage{
		u:          u,
		doc:        doc,
		watchers:   map[int]chan struct{}{},
		onClick:    map[string]ClickFunc{},
		onDispatch: map[string]ClickFunc{},
		currentSrc: map[string]string{},
	}, nil
}

// MustMemPage 用于测试与静态夹具；解析失败直接 panic。
func MustMemPage(rawURL, htmlText string) *MemPage {
	var u *url.URL
	if rawURL != "" {
		var err error
		if u, err = url.Parse(rawURL); err != nil {
			panic(err)
		}
	}
	p, err := NewMemPage(u, htmlText)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *MemPage) URL() *url.URL {
	c := *p.u
	return &c
}

func (p *MemPage) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// Document 返回当前版本的快照（深拷贝）。
func (p *MemPage) Document() (*goquery.Document, error) {
	p.mu.RLock()
	if p.snap != nil && p.snapVer == p.version {
		s := p.snap
		p.mu.RUnlock()
		return s, nil
	}
	var buf bytes.Buffer
	for _, n := range p.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			p.mu.RUnlock()
			return nil, err
		}
	}
	ver := p.version
	p.mu.RUnlock()

	snap, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, err
	}
	snap.Url = p.URL()

	p.mu.Lock()
	if p.version == ver {
		p.snap, p.snapVer = snap, ver
	}
	p.mu.Unlock()
	return snap, nil
}

// Mutate 在写锁内修改文档，然后通知订阅者。
func (p *MemPage) Mutate(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	fn(p.doc)
	p.version++
	p.mu.Unlock()
	p.notify()
}

// AppendHTML 把 HTML 片段追加到 parent 命中的首个元素末尾。
func (p *MemPage) AppendHTML(parent, fragment string) error {
	var err error
	p.Mutate(func(doc *goquery.Document) {
		target := doc.Find(parent).First()
		if target.Length() == 0 {
			err = fmt.Errorf("%w：%s", ErrNoElement, parent)
			return
		}
		ctxNode := target.Get(0)
		var nodes []*html.Node
		nodes, err = html.ParseFragment(strings.NewReader(fragment), ctxNode)
		if err != nil {
			return
		}
		for _, n := range nodes {
			ctxNode.AppendChild(n)
		}
	})
	return err
}

// SetAttr 修改首个命中元素的属性（元素不存在时不做任何事）。
func (p *MemPage) SetAttr(selector, name, value string) {
	p.Mutate(func(doc *goquery.Document) {
		doc.Find(selector).First().SetAttr(name, value)
	})
}

// SetCurrentSrc 设置 selector 对应 img 的“页面计算地址”，并视为一次变更。
func (p *MemPage) SetCurrentSrc(selector, src string) {
	p.mu.Lock()
	p.currentSrc[selector] = src
	p.version++
	p.mu.Unlock()
	p.notify()
}

func (p *MemPage) OnClick(selector string, fn ClickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
}

func (p *MemPage) OnDispatch(selector string, fn ClickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDispatch[selector] = fn
}

func (p *MemPage) Click(ctx context.Context, selector string) error {
	p.mu.RLock()
	fn := p.onClick[selector]
	if fn == nil {
		fn = p.DefaultClick
	}
	p.mu.RUnlock()
	return p.fire(ctx, selector, fn)
}

// DispatchClick 优先使用 OnDispatch 处理器，否则与 Click 走同一处理器。
func (p *MemPage) DispatchClick(ctx context.Context, selector string) error {
	p.mu.RLock()
	fn := p.onDispatch[selector]
	if fn == nil {
		fn = p.onClick[selector]
	}
	if fn == nil {
		fn = p.DefaultClick
	}
	p.mu.RUnlock()
	return p.fire(ctx, selector, fn)
}

func (p *MemPage) fire(ctx context.Context, selector string, fn ClickFunc) error {
	el, ok := Query(p, "", selector)
	if !ok {
		return fmt.Errorf("%w：%s", ErrNoElement, selector)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, p, el)
}

func (p *MemPage) CurrentSrc(_ context.Context, selector string) (string, error) {
	if _, ok := Query(p, "", selector); !ok {
		return "", fmt.Errorf("%w：%s", ErrNoElement, selector)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentSrc[selector], nil
}

func (p *MemPage) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

// Watchers 返回当前订阅数（测试用于断言订阅已释放）。
func (p *MemPage) Watchers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.watchers)
}

func (p *MemPage) notify() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.watchers {
		// 缓冲为 1：未消费的信号合并为一批。
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
