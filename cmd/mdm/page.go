package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/MDM/internal/channel"
	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/site"
)

// newCommander 可在测试中替换（去掉初始化等待）。
var newCommander = channel.NewCommander

// sendToPage 打开页面、注入执行端并发送一条命令。
func sendToPage(ctx context.Context, env *appEnv, pageURL string, cmd channel.Command) (channel.Response, error) {
	if err := cmd.Validate(); err != nil {
		return channel.Response{}, err
	}
	p, err := env.load(ctx, pageURL)
	if err != nil {
		return channel.Response{}, fmt.Errorf("加载页面失败：%w", err)
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	host := channel.NewHost(env.agent.EntryPoint, env.log)
	id := host.OpenTab(p)
	defer host.CloseTab(id)

	cmdr := newCommander(host)
	cmdr.Log = env.log
	return cmdr.Send(ctx, id, cmd)
}

func newGrabCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "grab <url>",
		Short: "抽取页面上的下载表格（豆瓣页抽取影片信息），不提交",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, cmd, gf)
			if err != nil {
				return err
			}
			defer env.Close()

			pageURL := strings.TrimSpace(args[0])
			var c channel.Command = channel.ExtractRarbg{}
			kind := env.agent.Router.RouteString(pageURL)
			switch kind {
			case site.KindDouban:
				c = channel.ExtractDouban{}
			case site.KindUnsupported, site.KindMovieDB:
				return fmt.Errorf("%w：不支持的页面 %s", errUsage, pageURL)
			}

			resp, err := sendToPage(ctx, env, pageURL, c)
			if err != nil {
				return err
			}
			return emitResponse(cmd.OutOrStdout(), kind, resp)
		},
	}
}

func newSubmitCmd(gf *globalFlags) *cobra.Command {
	var movieID, yinfansURL string
	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "抽取页面并提交到入库服务",
		Long: `抽取页面并提交到入库服务。

  rarbg/yts 页：提交下载表格
  豆瓣页：需要 --movie-id，提交到该影片的豆瓣信息
  --yinfans-url：打开 <url> 后让执行端抽取并提交该 yinfans 电影页`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, cmd, gf)
			if err != nil {
				return err
			}
			defer env.Close()

			pageURL := strings.TrimSpace(args[0])
			server, token := env.eff.Server, env.eff.SessionToken
			kind := env.agent.Router.RouteString(pageURL)

			var c channel.Command
			switch {
			case strings.TrimSpace(yinfansURL) != "":
				c = channel.ExtractAndSubmitYinfans{URL: strings.TrimSpace(yinfansURL), Server: server, SessionToken: token}
			case kind == site.KindYinfans:
				c = channel.ExtractAndSubmitYinfans{URL: pageURL, Server: server, SessionToken: token}
			case kind == site.KindDouban:
				c = channel.ExtractAndSubmitDouban{MovieID: movieID, Server: server, SessionToken: token}
			case kind == site.KindRarbg || kind == site.KindYTS:
				c = channel.ExtractAndSubmitRarbg{Server: server, SessionToken: token}
			default:
				return fmt.Errorf("%w：不支持的页面 %s", errUsage, pageURL)
			}

			resp, err := sendToPage(ctx, env, pageURL, c)
			if err != nil {
				return err
			}
			if kind == site.KindDouban && strings.TrimSpace(yinfansURL) == "" {
				return emitResponse(cmd.OutOrStdout(), site.KindDouban, resp)
			}
			return emitResponse(cmd.OutOrStdout(), site.KindRarbg, resp)
		},
	}
	cmd.Flags().StringVar(&movieID, "movie-id", "", "入库服务中的影片 ID（豆瓣页必填）")
	cmd.Flags().StringVar(&yinfansURL, "yinfans-url", "", "要抽取并提交的 yinfans 电影页地址")
	return cmd
}

// emitResponse 在终端上渲染表格，否则输出回复 JSON。
func emitResponse(w io.Writer, kind site.Kind, resp channel.Response) error {
	if !isTTY(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return resp.Err()
	}
	if e := resp.Err(); e != nil {
		return e
	}
	if resp.Message != "" {
		fmt.Fprintln(w, resp.Message)
	}
	if len(resp.Data) == 0 {
		return nil
	}
	if kind == site.KindDouban {
		var info domain.DoubanInfo
		if err := json.Unmarshal(resp.Data, &info); err != nil {
			return err
		}
		renderDouban(w, info)
		return nil
	}
	var rec domain.ExtractedRecord
	if err := json.Unmarshal(resp.Data, &rec); err != nil {
		return err
	}
	renderRecord(w, rec)
	return nil
}
