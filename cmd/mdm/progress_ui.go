package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/MDM/internal/app/harvest"
	"github.com/John-Robertt/MDM/internal/domain"
)

var _ harvest.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：harvest 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时定期输出一行，带上进行中的 URL
type progressUI struct {
	w io.Writer

	cacheDir string
	outDir   string

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int
	active  map[string]struct{}

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		active:             map[string]struct{}{},
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(opt harvest.Options) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "extract"
	if opt.Submit {
		mode = "submit"
		if opt.Force {
			mode += " (force)"
		}
	}

	fmt.Fprintf(p.w, "[%s] MDM harvest (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", opt.Input)
	fmt.Fprintf(p.w, "  server: %s\n", opt.Server)
	fmt.Fprintf(p.w, "  token: %s\n", maskToken(opt.Token))
	fmt.Fprintf(p.w, "  concurrency: %d\n", opt.Concurrency)
	if len(opt.Exclude) > 0 {
		fmt.Fprintf(p.w, "  exclude: %s\n", strings.Join(opt.Exclude, ", "))
	}
	if p.cacheDir != "" || p.outDir != "" {
		fmt.Fprintln(p.w, "输出:")
		if p.outDir != "" {
			fmt.Fprintf(p.w, "  out: %s\n", p.outDir)
		}
		if p.cacheDir != "" {
			fmt.Fprintf(p.w, "  cache: %s\n", p.cacheDir)
		}
	}
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: targets=%d rejected=%d (%s)\n",
			intField(fields, "targets"), intField(fields, "rejected"), formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "分组: urls=%d (%s)\n", intField(fields, "urls"), formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "规划: items=%d submit=%d skip=%d (%s)\n",
			intField(fields, "items"), intField(fields, "submit"), intField(fields, "skip"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemStart(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[url] = struct{}{}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	delete(p.active, res.URL)

	switch res.Status {
	case domain.StatusSubmitted, domain.StatusExtracted:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	fmt.Fprintln(p.w, formatItemLine(idx, total, res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func formatItemLine(idx, total int, res domain.ItemResult, dur time.Duration) string {
	head := fmt.Sprintf("[%d/%d] %s", idx, total, res.URL)
	switch res.Status {
	case domain.StatusFailed:
		return fmt.Sprintf("%s FAIL %s: %s (%s)", head, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	case domain.StatusSkipped:
		return fmt.Sprintf("%s SKIP (已提交过) (%s)", head, formatShortDuration(dur))
	case domain.StatusSubmitted:
		return fmt.Sprintf("%s SUBMIT %q links=%d %s (%s)", head, truncate(res.Title, 60), res.Links, truncate(res.Message, 60), formatShortDuration(dur))
	default:
		return fmt.Sprintf("%s OK %q links=%d (%s)", head, truncate(res.Title, 60), res.Links, formatShortDuration(dur))
	}
}

// activeLocked 返回进行中的 URL（排序后最多 n 个）。
func (p *progressUI) activeLocked(n int) []string {
	out := make([]string, 0, len(p.active))
	for u := range p.active {
		out = append(out, u)
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d active=%d elapsed=%s %s\n",
						p.done, p.total, p.ok, p.fail, p.skip, len(p.active),
						formatElapsed(time.Since(p.startedAt)), strings.Join(p.activeLocked(3), " "),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func maskToken(tok string) string {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "":
		return "(未设置)"
	case len(tok) <= 8:
		return "****"
	default:
		return tok[:4] + "…" + tok[len(tok)-4:]
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
