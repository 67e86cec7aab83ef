// Package transport 把抽取结果提交到入库服务。
//
// 约束：本层不做重试；非 2xx 与网络错误都原样交给调用方。
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/John-Robertt/MDM/internal/domain"
)

const defaultTimeout = 30 * time.Second

// HTTPStatusError 表示入库服务返回了非 2xx；Body 是响应体原文（可能为空）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d：%s", e.StatusCode, body)
}

// Reply 是入库服务的 JSON 响应。
type Reply struct {
	Message string          `json:"message"`
	Movie   json.RawMessage `json:"movie,omitempty"`
	// Status 是 HTTP 状态码（201 表示新建）。
	Status int `json:"-"`
}

// Client 是入库服务的客户端。
type Client struct {
	http *resty.Client
}

// New 构造客户端；hc 为 nil 时使用默认 http.Client。
func New(hc *http.Client) *Client {
	var c *resty.Client
	if hc != nil {
		c = resty.NewWithClient(hc)
	} else {
		c = resty.New()
	}
	c.SetTimeout(defaultTimeout)
	c.SetHeader("Accept", "application/json")
	instrument(c)
	return &Client{http: c}
}

// SubmitMovie：POST {base}/api/movie，body 为 ExtractedRecord。
func (c *Client) SubmitMovie(ctx context.Context, base string, rec domain.ExtractedRecord, token string) (Reply, error) {
	return c.post(ctx, endpoint(base, "api", "movie"), rec, token)
}

// SubmitDouban：POST {base}/api/douban/{id}，body 为 DoubanInfo。
func (c *Client) SubmitDouban(ctx context.Context, base string, id domain.MovieID, info domain.DoubanInfo, token string) (Reply, error) {
	if id == "" {
		return Reply{}, fmt.Errorf("movie id 不能为空")
	}
	return c.post(ctx, endpoint(base, "api", "douban", url.PathEscape(string(id))), info, token)
}

func (c *Client) post(ctx context.Context, u string, body any, token string) (Reply, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if token = strings.TrimSpace(token); token != "" {
		req.SetAuthToken(token)
	}

	res, err := req.Post(u)
	if err != nil {
		return Reply{}, fmt.Errorf("提交到 %s 失败：%w", u, err)
	}
	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() > 299 {
		return Reply{}, &HTTPStatusError{URL: u, StatusCode: res.StatusCode(), Body: res.String()}
	}

	var r Reply
	if b := res.Body(); len(b) > 0 {
		if err := json.Unmarshal(b, &r); err != nil {
			// 2xx 但不是 JSON：保留原文作为消息。
			r.Message = strings.TrimSpace(string(b))
		}
	}
	r.Status = res.StatusCode()
	return r, nil
}

func endpoint(base string, parts ...string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.Join(parts, "/")
}

var tracer = otel.Tracer("github.com/John-Robertt/MDM/internal/transport")

// instrument 为每个请求开一个 span：请求前开始，响应或出错时结束。
func instrument(c *resty.Client) {
	c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), "http "+req.Method)
		req.SetContext(ctx)
		return nil
	})
	c.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()
		span.SetAttributes(
			attribute.String("http.url", res.Request.URL),
			attribute.Int("http.status_code", res.StatusCode()),
		)
		if res.IsError() {
			span.SetStatus(codes.Error, res.Status())
		}
		return nil
	})
	c.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	})
}
