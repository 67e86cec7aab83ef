// Package harvest 批量处理 URL 清单：扫描 -> 分组 -> 规划 -> 执行（加载页面并通过消息通道下发命令）。
package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MDM/internal/app"
	"github.com/John-Robertt/MDM/internal/app/agent"
	"github.com/John-Robertt/MDM/internal/app/planner"
	"github.com/John-Robertt/MDM/internal/channel"
	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/export"
	"github.com/John-Robertt/MDM/internal/scan"
)

// Options 是一次 harvest 的输入。
type Options struct {
	Input       string
	Exclude     []string
	Server      string
	Token       string
	Submit      bool
	Force       bool
	Concurrency int
}

// Deps 是 harvest 依赖的外部能力。
type Deps struct {
	FS    afero.Fs
	Agent *agent.Agent
	// Load 打开清单中的页面（HTTP 加载或浏览器标签页）。
	Load   agent.Loader
	Ledger planner.Ledger
	// Export 非空时把抽取结果落盘。
	Export *export.Writer
	// NewCommander 可替换指挥端构造（测试中把等待时间置零）。
	NewCommander func(channel.Messenger) *channel.Commander
	Log          *slog.Logger
}

// Execute 执行一次 harvest 并返回对外稳定的 RunReport。
// 错误尽量降级为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, opt Options, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(opt)
	}

	rr := domain.RunReport{
		Server:    opt.Server,
		Submit:    opt.Submit,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	fsys := deps.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	scanStarted := time.Now()
	targets, badLines, err := scan.ScanTargets(fsys, opt.Input, opt.Exclude)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInvalidInput, fmt.Sprintf("读取清单失败：%v", err)))
		return finish()
	}
	scanDur := time.Since(scanStarted)

	groupStarted := time.Now()
	items, rejected := app.GroupTargets(targets, deps.Agent.Router)
	rejected = append(badLines, rejected...)
	groupDur := time.Since(groupStarted)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"targets":  len(targets),
			"rejected": len(rejected),
		}, scanDur)
		obs.OnPhaseDone("group", map[string]any{
			"urls": len(items),
		}, groupDur)
	}

	// 每条被拒绝的清单行单独形成一条 item，便于用户逐行修复。
	for _, r := range rejected {
		rr.Items = append(rr.Items, rejectedItem(r))
	}

	planStarted := time.Now()
	plans := make([]domain.ItemPlan, 0, len(items))
	sources := make(map[string][]string, len(items))
	for _, it := range items {
		sources[it.URL] = it.Sources
		p, e := planner.PlanItem(it, opt.Submit, opt.Force, deps.Ledger)
		if e != nil {
			res := newItem(p, it.Sources)
			fail(&res, domain.ErrCodeInvalidInput, e.Error())
			rr.Items = append(rr.Items, res)
			continue
		}
		plans = append(plans, p)
	}
	planDur := time.Since(planStarted)

	if obs != nil {
		counts := map[string]int{}
		for _, p := range plans {
			counts[p.Action]++
		}
		obs.OnPhaseDone("plan", map[string]any{
			"items":  len(plans),
			"submit": counts[domain.ActionSubmit] + counts[domain.ActionSubmitDouban],
			"skip":   counts[domain.ActionSkip],
		}, planDur)
	}

	workers := opt.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(plans),
		}, 0)
	}

	x := newExecutor(opt, deps)

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.ItemPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if obs != nil {
					obs.OnItemStart(p.URL)
				}
				oneStarted := time.Now()
				r := x.execOne(ctx, p, sources[p.URL])
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnItemDone(done, len(plans), it.res, it.dur)
		}
	}

	return finish()
}

// executor 在所有 worker 之间共享一个宿主与指挥端；每个条目一个标签页。
type executor struct {
	opt  Options
	deps Deps
	host *channel.Host
	cmdr *channel.Commander
	log  *slog.Logger
}

func newExecutor(opt Options, deps Deps) *executor {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	host := channel.NewHost(deps.Agent.EntryPoint, log)
	var cmdr *channel.Commander
	if deps.NewCommander != nil {
		cmdr = deps.NewCommander(host)
	} else {
		cmdr = channel.NewCommander(host)
	}
	if cmdr.Log == nil {
		cmdr.Log = log
	}
	return &executor{opt: opt, deps: deps, host: host, cmdr: cmdr, log: log}
}

func (x *executor) execOne(ctx context.Context, p domain.ItemPlan, sources []string) domain.ItemResult {
	item := newItem(p, sources)
	if p.Action == domain.ActionSkip {
		item.Status = domain.StatusSkipped
		return item
	}

	cmd, err := planner.Command(p, x.opt.Server, x.opt.Token)
	if err != nil {
		fail(&item, domain.ErrCodeInvalidCommand, err.Error())
		return item
	}
	// 先校验再加载页面：token 缺失等问题不值得一次网络请求。
	if err := cmd.Validate(); err != nil {
		fail(&item, domain.ErrCodeInvalidCommand, err.Error())
		return item
	}

	page, err := x.deps.Load(ctx, p.URL)
	if err != nil {
		fail(&item, domain.ErrCodeLoadFailed, fmt.Sprintf("加载页面失败：%v", err))
		return item
	}
	if c, ok := page.(interface{ Close() error }); ok {
		defer c.Close()
	}

	id := x.host.OpenTab(page)
	defer x.host.CloseTab(id)

	resp, err := x.cmdr.Send(ctx, id, cmd)
	if err != nil {
		var ve *channel.ValidationError
		if errors.As(err, &ve) {
			fail(&item, domain.ErrCodeInvalidCommand, err.Error())
		} else {
			fail(&item, domain.ErrCodeChannelNotReady, err.Error())
		}
		return item
	}
	if err := resp.Err(); err != nil {
		fail(&item, remoteCode(p, err.Error()), err.Error())
		return item
	}
	if len(resp.Data) == 0 {
		// 抽取命令找不到表格时以成功 + message 回复。
		code := domain.ErrCodeParseFailed
		if resp.Message == agent.ErrNotFound.Error() {
			code = domain.ErrCodeNotFound
		}
		fail(&item, code, orDefault(resp.Message, "回复中没有数据"))
		return item
	}

	rec, info, err := decodeData(p, resp.Data)
	if err != nil {
		fail(&item, domain.ErrCodeParseFailed, err.Error())
		return item
	}
	item.Title = rec.Title
	item.Links = len(rec.Links)
	item.Message = resp.Message

	if p.Submits() {
		item.Status = domain.StatusSubmitted
		if err := x.deps.Ledger.Mark(p, resp.Message, time.Now()); err != nil {
			x.log.WarnContext(ctx, "写入提交台账失败", "url", p.URL, "err", err)
		}
	} else {
		item.Status = domain.StatusExtracted
	}

	if x.deps.Export != nil {
		res, err := x.deps.Export.Write(ctx, rec, info)
		switch {
		case err != nil:
			x.log.WarnContext(ctx, "导出失败", "url", p.URL, "err", err)
			item.Message = strings.TrimSpace(item.Message + "；导出失败：" + err.Error())
		case res.PosterErr != nil:
			x.log.InfoContext(ctx, "封面下载失败", "url", p.URL, "err", res.PosterErr)
		}
		if err == nil {
			item.OutDir = res.Dir
		}
	}
	return item
}

// decodeData 解析回复数据；豆瓣页的结果折算为只有标题与封面的记录，便于统一导出。
func decodeData(p domain.ItemPlan, data json.RawMessage) (domain.ExtractedRecord, *domain.DoubanInfo, error) {
	if p.Action == domain.ActionExtractDouban || p.Action == domain.ActionSubmitDouban {
		var info domain.DoubanInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return domain.ExtractedRecord{}, nil, fmt.Errorf("解析豆瓣信息失败：%w", err)
		}
		rec := domain.ExtractedRecord{Title: info.Title, URL: p.URL}
		if y := info.Year(); y > 0 {
			rec.Year = domain.IntPtr(y)
		}
		if info.Image != "" {
			rec.CoverImage = &domain.CoverImage{Src: domain.StrPtr(info.Image), Alt: domain.StrPtr(info.Title)}
		}
		return rec, &info, nil
	}

	var rec domain.ExtractedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ExtractedRecord{}, nil, fmt.Errorf("解析抽取记录失败：%w", err)
	}
	return rec, nil, nil
}

func remoteCode(p domain.ItemPlan, msg string) string {
	switch {
	case strings.Contains(msg, agent.ErrNotFound.Error()):
		return domain.ErrCodeNotFound
	case strings.Contains(msg, agent.ErrUnsupportedPage.Error()):
		return domain.ErrCodeParseFailed
	case p.Submits():
		return domain.ErrCodeTransportFailed
	default:
		return domain.ErrCodeParseFailed
	}
}

func newItem(p domain.ItemPlan, sources []string) domain.ItemResult {
	return domain.ItemResult{
		URL:      p.URL,
		Sources:  append([]string{}, sources...),
		PageType: p.Kind,
		Action:   p.Action,
	}
}

func fail(item *domain.ItemResult, code, msg string) {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
}

func rejectedItem(r domain.Rejected) domain.ItemResult {
	item := domain.ItemResult{
		URL:     r.Target.URL,
		Sources: []string{r.Target.Source},
	}
	switch r.Kind {
	case domain.RejectUnsupported:
		item.Status = domain.StatusUnsupported
		item.ErrorMsg = r.Reason
	default:
		fail(&item, domain.ErrCodeInvalidInput, r.Reason)
	}
	return item
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Sources:   []string{},
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func orDefault(v, d string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return d
}
