package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/MDM/internal/ingest"
	"github.com/John-Robertt/MDM/internal/infra/logx"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(gf *globalFlags) *cobra.Command {
	var addr, dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动入库服务（/api/movie、/api/douban/{movieId}）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eff, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			log, closer, err := logx.Setup(cmd.ErrOrStderr(), logx.Options{
				Level:      eff.Log.Level,
				File:       eff.Log.File,
				MaxSizeMB:  eff.Log.MaxSizeMB,
				MaxBackups: eff.Log.MaxBackups,
			})
			if err != nil {
				return fmt.Errorf("初始化日志失败：%w", err)
			}
			defer closer.Close()

			if addr == "" {
				addr = eff.Ingest.Addr
			}
			if dbPath == "" {
				dbPath = eff.Ingest.DBPath
			}

			store, err := ingest.Open(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("打开数据库失败：%w", err)
			}
			defer store.Close()

			auth := ingest.Authenticator{Secret: []byte(eff.Ingest.JWTSecret), Subjects: eff.Ingest.AllowedSubjects}
			if !auth.Enabled() {
				log.WarnContext(ctx, "未配置 ingest.jwt_secret，豆瓣写入接口不校验身份")
			}
			srv := &ingest.Server{Store: store, Auth: auth, Log: log}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "入库服务已启动", "addr", ln.Addr().String(), "db", dbPath)
			return serveUntilDone(ctx, &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（默认取配置 ingest.addr）")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite 文件路径（默认取配置 ingest.db_path）")
	return cmd
}

// serveUntilDone 在 ctx 结束时优雅关闭。
func serveUntilDone(ctx context.Context, hs *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
