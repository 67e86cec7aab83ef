package main

import (
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/MDM/internal/app/harvest"
	"github.com/John-Robertt/MDM/internal/app/planner"
	"github.com/John-Robertt/MDM/internal/export"
	"github.com/John-Robertt/MDM/internal/infra/fsx"
)

const reportName = "report.json"

func newHarvestCmd(gf *globalFlags) *cobra.Command {
	var (
		opt     harvest.Options
		outDir  string
		noCover bool
	)
	cmd := &cobra.Command{
		Use:   "harvest <file|dir>",
		Short: "批量处理 URL 清单（每行 `<url> [movie-id]`）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, cmd, gf)
			if err != nil {
				return err
			}
			defer env.Close()

			opt.Input = args[0]
			opt.Server = env.eff.Server
			opt.Token = env.eff.SessionToken
			if !cmd.Flags().Changed("concurrency") {
				opt.Concurrency = env.eff.Concurrency
			}

			deps := harvest.Deps{
				FS:           afero.NewOsFs(),
				Agent:        env.agent,
				Load:         env.load,
				Ledger:       planner.Ledger{Store: env.cache},
				NewCommander: newCommander,
				Log:          env.log,
			}
			if outDir != "" {
				w := &export.Writer{Dir: outDir, Client: env.pages}
				if noCover {
					w.Client = nil
				}
				deps.Export = w
			}

			progressW, interactive := pickProgressWriter(cmd.ErrOrStderr(), cmd.OutOrStdout())
			var obs harvest.Observer
			if interactive {
				ui := newProgressUI(progressW)
				ui.cacheDir = cacheDirOf(env)
				ui.outDir = outDir
				obs = ui
			}

			rr := harvest.Execute(ctx, opt, deps, obs)

			if env.cache != nil {
				if err := fsx.WriteJSONAtomic(env.cache.Root, reportName, rr); err != nil {
					env.log.WarnContext(ctx, "写入 report.json 失败", "err", err)
				} else if interactive {
					emitLocation(progressW, filepath.Join(env.cache.Root, reportName))
				}
			}

			emitReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), rr)
			if rr.Summary.Failed > 0 {
				return errItemsFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opt.Submit, "submit", false, "抽取后提交到入库服务（默认只抽取）")
	f.BoolVar(&opt.Force, "force", false, "忽略“已提交”台账，重新提交")
	f.IntVar(&opt.Concurrency, "concurrency", 0, "并发数（默认取配置）")
	f.StringSliceVar(&opt.Exclude, "exclude", nil, "目录输入时排除的子目录（可重复）")
	f.StringVar(&outDir, "out", "", "导出目录：每条记录写入 record.json、movie.nfo 与 poster.jpg")
	f.BoolVar(&noCover, "no-cover", false, "导出时不下载封面")
	return cmd
}

func cacheDirOf(env *appEnv) string {
	if env.cache == nil {
		return ""
	}
	return env.cache.Root
}

// pickProgressWriter 只在交互终端启用进度输出；默认走 stderr，不污染 stdout JSON。
func pickProgressWriter(stderr, stdout io.Writer) (io.Writer, bool) {
	if isTTY(stderr) {
		return stderr, true
	}
	// 仅重定向 stderr 时 stdout 仍可能是终端。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocation(w io.Writer, report string) {
	if w == nil {
		return
	}
	_, _ = io.WriteString(w, "report: "+report+"\n")
}

