package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/MDM/internal/config"
	"github.com/John-Robertt/MDM/internal/dom/rodpage"
)

func newLoginCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "保存入库服务的会话 token（--token 直接保存，否则打开浏览器登录后读取 cookie）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eff, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}

			token := ""
			if cmd.Flags().Changed("token") {
				token = strings.TrimSpace(gf.token)
			} else {
				b, err := rodpage.Launch(ctx, gf.controlURL, false)
				if err != nil {
					return err
				}
				defer b.Close()

				p, err := b.Open(ctx, eff.BaseURL)
				if err != nil {
					return err
				}
				defer p.Close()

				fmt.Fprintf(cmd.ErrOrStderr(), "请在浏览器中登录 %s，完成后按回车……\n", eff.BaseURL)
				if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err != nil {
					return fmt.Errorf("读取输入失败：%w", err)
				}
				token, err = b.Cookie(eff.BaseURL, config.SessionCookieName(eff.BaseURL))
				if err != nil {
					return err
				}
			}
			if token == "" {
				return fmt.Errorf("未取得会话 token（请确认已登录 %s）", eff.BaseURL)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			server := ""
			if cmd.Flags().Changed("server") {
				server = eff.Server
			}
			path, err := config.SaveSession(afero.NewOsFs(), cwd, gf.configPath, server, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已保存会话到 %s\n", path)
			return nil
		},
	}
}
