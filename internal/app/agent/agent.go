// Package agent 是页面执行端：把站点 Plan、豆瓣抽取与入库提交装配成 channel 处理器。
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/John-Robertt/MDM/internal/channel"
	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/site"
	"github.com/John-Robertt/MDM/internal/site/douban"
	"github.com/John-Robertt/MDM/internal/site/rarbg"
	"github.com/John-Robertt/MDM/internal/site/yinfans"
	"github.com/John-Robertt/MDM/internal/site/yts"
	"github.com/John-Robertt/MDM/internal/transport"
)

const submittedMessage = "Data submitted successfully!"

var (
	// ErrNotFound 表示页面上没有可抽取的下载表格（等待超时或规范化失败）。
	ErrNotFound = errors.New("未找到下载链接表格")
	// ErrUnsupportedPage 表示当前页面不属于该命令的站点。
	ErrUnsupportedPage = errors.New("当前页面不支持该操作")
)

// Submitter 是入库服务客户端；*transport.Client 实现它。
type Submitter interface {
	SubmitMovie(ctx context.Context, base string, rec domain.ExtractedRecord, token string) (transport.Reply, error)
	SubmitDouban(ctx context.Context, base string, id domain.MovieID, info domain.DoubanInfo, token string) (transport.Reply, error)
}

// Loader 打开一个新页面（yinfans 命令携带的地址与当前页不同时使用）。
type Loader func(ctx context.Context, rawURL string) (dom.Page, error)

// DefaultRegistry 注册全部下载表格类站点。
func DefaultRegistry(o site.Options) (site.Registry, error) {
	return site.NewRegistry(rarbg.Plan(o), yts.Plan(o), yinfans.Plan(o))
}

// Agent 在每个页面上安装一个 Executor。
type Agent struct {
	Registry site.Registry
	Router   site.Router
	Douban   douban.Extractor
	Submit   Submitter
	// BaseURL 把 local/prod 映射为入库服务地址。
	BaseURL func(server string) string
	Load    Loader

	// OnState 观察每次抽取的状态迁移（可选）。
	OnState func(kind site.Kind, s site.State)
	Log     *slog.Logger
}

// EntryPoint 是注入页面时求值的入口；闩锁保证同一页面只安装一个监听。
func (a *Agent) EntryPoint(ctx context.Context, env channel.Env) {
	installed := env.Latch.Do(func() {
		env.Listen(a.Executor(env.Page))
	})
	if !installed {
		a.logger().DebugContext(ctx, "执行端已安装，跳过", "url", env.Page.URL().String())
	}
}

// Executor 为页面 p 构造命令分派表。
func (a *Agent) Executor(p dom.Page) *channel.Executor {
	e := channel.NewExecutor(a.logger())

	e.Handle(channel.ActionExtractDouban, channel.Async(channel.HandlerFunc(
		func(ctx context.Context, _ channel.Command) (channel.Result, error) {
			info, err := a.extractDouban(ctx, p)
			if err != nil {
				return channel.Result{}, err
			}
			return channel.Result{Data: info}, nil
		})))

	e.Handle(channel.ActionExtractRarbg, channel.Async(channel.HandlerFunc(
		func(ctx context.Context, _ channel.Command) (channel.Result, error) {
			rec, _, err := a.ExtractRecord(ctx, p)
			if errors.Is(err, ErrNotFound) {
				// 找不到表格只记录日志，不作为失败回复。
				return channel.Result{Message: err.Error()}, nil
			}
			if err != nil {
				return channel.Result{}, err
			}
			return channel.Result{Data: rec}, nil
		})))

	e.Handle(channel.ActionExtractAndSubmitRarbg, channel.Async(channel.HandlerFunc(
		func(ctx context.Context, cmd channel.Command) (channel.Result, error) {
			c := cmd.(channel.ExtractAndSubmitRarbg)
			return a.extractAndSubmit(ctx, p, c.Server, c.SessionToken)
		})))

	e.Handle(channel.ActionExtractAndSubmitYinfans, channel.Async(channel.HandlerFunc(
		func(ctx context.Context, cmd channel.Command) (channel.Result, error) {
			c := cmd.(channel.ExtractAndSubmitYinfans)
			target, release, err := a.pageFor(ctx, p, c.URL)
			if err != nil {
				return channel.Result{}, err
			}
			defer release()
			if k := a.Router.Route(target.URL()); k != site.KindYinfans {
				return channel.Result{}, fmt.Errorf("%w：%s 不是 yinfans 电影页", ErrUnsupportedPage, c.URL)
			}
			return a.extractAndSubmit(ctx, target, c.Server, c.SessionToken)
		})))

	e.Handle(channel.ActionExtractAndSubmitDouban, channel.Async(channel.HandlerFunc(
		func(ctx context.Context, cmd channel.Command) (channel.Result, error) {
			c := cmd.(channel.ExtractAndSubmitDouban)
			info, err := a.extractDouban(ctx, p)
			if err != nil {
				return channel.Result{}, err
			}
			id, _ := domain.ParseMovieID(c.MovieID)
			reply, err := a.Submit.SubmitDouban(ctx, a.BaseURL(c.Server), id, info, c.SessionToken)
			if err != nil {
				return channel.Result{}, err
			}
			return channel.Result{Data: info, Message: replyMessage(reply)}, nil
		})))

	return e
}

// ExtractRecord 按页面类型选择 Plan 执行一次抽取。
func (a *Agent) ExtractRecord(ctx context.Context, p dom.Page) (domain.ExtractedRecord, site.Kind, error) {
	kind := a.Router.Route(p.URL())
	plan, ok := a.Registry.Get(kind)
	if !ok {
		return domain.ExtractedRecord{}, kind, fmt.Errorf("%w：%s（%s）", ErrUnsupportedPage, p.URL(), kind)
	}
	o := site.Orchestrator{Plan: plan}
	if a.OnState != nil {
		o.OnState = func(s site.State) { a.OnState(kind, s) }
	}
	rec, ok := o.Run(ctx, p)
	if !ok {
		return domain.ExtractedRecord{}, kind, ErrNotFound
	}
	return rec, kind, nil
}

func (a *Agent) extractAndSubmit(ctx context.Context, p dom.Page, server, token string) (channel.Result, error) {
	rec, kind, err := a.ExtractRecord(ctx, p)
	if err != nil {
		return channel.Result{}, err
	}
	reply, err := a.Submit.SubmitMovie(ctx, a.BaseURL(server), rec, token)
	if err != nil {
		return channel.Result{}, err
	}
	a.logger().InfoContext(ctx, "已提交", "kind", kind, "title", rec.Title, "links", len(rec.Links), "status", reply.Status)
	return channel.Result{Data: rec, Message: replyMessage(reply)}, nil
}

func (a *Agent) extractDouban(ctx context.Context, p dom.Page) (domain.DoubanInfo, error) {
	if k := a.Router.Route(p.URL()); k != site.KindDouban {
		return domain.DoubanInfo{}, fmt.Errorf("%w：%s 不是豆瓣电影页", ErrUnsupportedPage, p.URL())
	}
	return a.Douban.Extract(ctx, p)
}

// pageFor 返回 rawURL 对应的页面：与当前页相同则复用，否则通过 Load 打开。
// release 关闭由 pageFor 打开的页面；复用当前页时是 no-op。
func (a *Agent) pageFor(ctx context.Context, current dom.Page, rawURL string) (dom.Page, func(), error) {
	rawURL = strings.TrimSpace(rawURL)
	if sameURL(current.URL().String(), rawURL) {
		return current, func() {}, nil
	}
	if a.Load == nil {
		return nil, nil, fmt.Errorf("无法打开 %s：未配置页面加载器", rawURL)
	}
	p, err := a.Load(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if c, ok := p.(io.Closer); ok {
		release = func() {
			if err := c.Close(); err != nil {
				a.logger().DebugContext(ctx, "关闭页面失败", "url", rawURL, "err", err)
			}
		}
	}
	return p, release, nil
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

func replyMessage(r transport.Reply) string {
	if m := strings.TrimSpace(r.Message); m != "" {
		return m
	}
	return submittedMessage
}

func (a *Agent) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}
