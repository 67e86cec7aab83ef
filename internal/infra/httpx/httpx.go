package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultRetryMax   = 2
	defaultRetryDelay = 200 * time.Millisecond
)

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// 设计目标：页面加载只关心“拿到 HTML”，不关心网络策略细节。
// 注意：提交（POST）永远不会在这里重试，重试策略属于调用方。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// RetryDelay 是两次尝试之间的基础间隔（retry-go 默认退避）。
	RetryDelay time.Duration

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			r := req.Clone(req.Context())
			if r.Header.Get("User-Agent") == "" && t.ua != nil {
				r.Header.Set("User-Agent", t.ua.random())
			}
			if t.DisableKeepAlives {
				r.Close = true
			}
			res, err := t.Base.RoundTrip(r)
			if err != nil {
				return err
			}
			resp = res
			return nil
		},
		// Attempts(0) 在 retry-go 中表示无限重试，这里至少为 1。
		retry.Attempts(uint(max+1)),
		retry.Delay(t.RetryDelay),
		retry.Context(req.Context()),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return req.Context().Err() == nil }),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// NewPageClient 构造用于页面加载的 HTTP client。
//
// 规则：
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 内置 UA 池：每个请求随机 UA
// - 有界重试 + 总超时
func NewPageClient(proxyURL string) (*http.Client, error) {
	return newClient(strings.TrimSpace(proxyURL), false)
}

func newClient(proxyURL string, disableKeepAlives bool) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		DisableKeepAlives:     disableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		RetryMax:          defaultRetryMax,
		RetryDelay:        defaultRetryDelay,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   defaultTimeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
