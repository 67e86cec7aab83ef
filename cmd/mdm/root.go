package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/MDM/internal/app/agent"
	"github.com/John-Robertt/MDM/internal/config"
	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/dom/rodpage"
	"github.com/John-Robertt/MDM/internal/infra/cache"
	"github.com/John-Robertt/MDM/internal/infra/httpx"
	"github.com/John-Robertt/MDM/internal/infra/logx"
	"github.com/John-Robertt/MDM/internal/site"
	"github.com/John-Robertt/MDM/internal/site/douban"
	"github.com/John-Robertt/MDM/internal/transport"
)

var (
	errUsage       = errors.New("参数错误")
	errItemsFailed = errors.New("存在失败条目")
)

// newPageClient 可在测试中替换为指向本地服务的 client。
var newPageClient = httpx.NewPageClient

type globalFlags struct {
	configPath string
	server     string
	token      string

	browser    bool
	controlURL string
	headless   bool
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "mdm",
		Short:         "mdm 从影视资源页抽取下载信息，并提交到入库服务。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "配置文件路径（默认 ./mdm.json）")
	pf.StringVar(&gf.server, "server", "", "提交目标：local|prod")
	pf.StringVar(&gf.token, "token", "", "入库服务会话 token")
	pf.BoolVar(&gf.browser, "browser", false, "用真实浏览器打开页面（go-rod）")
	pf.StringVar(&gf.controlURL, "control-url", "", "连接已有浏览器的 DevTools 地址（默认启动本地 Chromium）")
	pf.BoolVar(&gf.headless, "headless", true, "浏览器是否无头运行")

	root.AddCommand(
		newGrabCmd(gf),
		newSubmitCmd(gf),
		newHarvestCmd(gf),
		newServeCmd(gf),
		newLoginCmd(gf),
	)
	return root
}

// appEnv 是一次命令执行所需的全部装配结果。
type appEnv struct {
	eff   config.EffectiveConfig
	log   *slog.Logger
	cache *cache.Store
	agent *agent.Agent
	load  agent.Loader
	// pages 用于下载封面等非页面资源。
	pages *http.Client

	closers []io.Closer
}

func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func loadConfig(cmd *cobra.Command, gf *globalFlags) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, fmt.Errorf("读取当前目录失败：%w", err)
	}
	flags := cmd.Flags()
	return config.LoadEffective(afero.NewOsFs(), cwd, config.CLIArgs{
		ConfigPath: gf.configPath,
		Server:     gf.server,
		ServerSet:  flags.Changed("server"),
		Token:      gf.token,
		TokenSet:   flags.Changed("token"),
	})
}

// setup 读取配置、初始化日志并装配执行端。
func setup(ctx context.Context, cmd *cobra.Command, gf *globalFlags) (*appEnv, error) {
	eff, err := loadConfig(cmd, gf)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logx.Setup(cmd.ErrOrStderr(), logx.Options{
		Level:      eff.Log.Level,
		File:       eff.Log.File,
		MaxSizeMB:  eff.Log.MaxSizeMB,
		MaxBackups: eff.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败：%w", err)
	}
	env := &appEnv{eff: eff, log: log, closers: []io.Closer{logCloser}}

	pages, err := newPageClient(eff.ProxyURL)
	if err != nil {
		env.Close()
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.Source, Err: err}
	}
	env.pages = pages

	if dir := cacheDir(eff); dir != "" {
		s := cache.New(dir, false)
		env.cache = &s
	}

	env.load = func(ctx context.Context, rawURL string) (dom.Page, error) {
		p, err := dom.Load(ctx, pages, rawURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if gf.browser {
		b, err := rodpage.Launch(ctx, gf.controlURL, gf.headless)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, b)
		env.load = func(ctx context.Context, rawURL string) (dom.Page, error) {
			p, err := b.Open(ctx, rawURL)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	reg, err := agent.DefaultRegistry(site.Options{
		ContainerTimeout: eff.ContainerTimeout,
		CoverDeadline:    eff.CoverTimeout,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.agent = &agent.Agent{
		Registry: reg,
		Router:   site.Router{Origins: []string{eff.ProdBaseURL, eff.LocalBaseURL}},
		Douban:   douban.Extractor{Cache: env.cache},
		Submit:   transport.New(nil),
		BaseURL:  eff.BaseURLFor,
		Load:     env.load,
		OnState: func(kind site.Kind, s site.State) {
			log.DebugContext(ctx, "抽取状态", "kind", kind, "state", s.String())
		},
		Log: log,
	}
	return env, nil
}

// cacheDir 返回缓存根目录；未配置时使用用户缓存目录下的 mdm/。
func cacheDir(eff config.EffectiveConfig) string {
	if eff.CacheDir != "" {
		if filepath.IsAbs(eff.CacheDir) || eff.Source == "" {
			return eff.CacheDir
		}
		return filepath.Join(filepath.Dir(eff.Source), eff.CacheDir)
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mdm")
}
