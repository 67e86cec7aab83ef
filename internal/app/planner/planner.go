package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/John-Robertt/MDM/internal/channel"
	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/infra/cache"
)

// Namespace 是“已提交”台账在缓存中的命名空间。
const Namespace = "submitted"

// Entry 是台账中的一条记录。
type Entry struct {
	URL         string    `json:"url"`
	MovieID     string    `json:"movie_id,omitempty"`
	Message     string    `json:"message"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Ledger 记录已成功提交的 URL；Store 为 nil 时视为空台账且不写入。
type Ledger struct {
	Store *cache.Store
}

func ledgerKey(p domain.ItemPlan) string {
	if p.Action == domain.ActionSubmitDouban {
		return "douban|" + string(p.MovieID) + "|" + p.URL
	}
	return p.URL
}

// Done 报告该计划此前是否已提交成功。读取失败按未提交处理。
func (l Ledger) Done(p domain.ItemPlan) bool {
	if l.Store == nil {
		return false
	}
	var e Entry
	ok, err := l.Store.ReadJSON(Namespace, ledgerKey(p), &e)
	return err == nil && ok
}

// Mark 记录一次成功提交。
func (l Ledger) Mark(p domain.ItemPlan, message string, at time.Time) error {
	if l.Store == nil {
		return nil
	}
	return l.Store.WriteJSON(Namespace, ledgerKey(p), Entry{
		URL:         p.URL,
		MovieID:     string(p.MovieID),
		Message:     message,
		SubmittedAt: at.UTC(),
	})
}

// PlanItem 决定对某个 WorkItem 执行什么动作。
//
// 规则：
// - submit=false：只抽取（豆瓣页抽 DoubanInfo，其它抽下载表格）
// - submit=true：豆瓣页必须带 movie-id；已在台账中的条目跳过（force 时不跳过）
func PlanItem(it domain.WorkItem, submit, force bool, ledger Ledger) (domain.ItemPlan, error) {
	p := domain.ItemPlan{URL: it.URL, Kind: it.Kind, MovieID: it.MovieID}

	douban := it.Kind == "douban"
	switch {
	case !submit && douban:
		p.Action = domain.ActionExtractDouban
		return p, nil
	case !submit:
		p.Action = domain.ActionExtract
		return p, nil
	case douban:
		if it.MovieID == "" {
			return p, fmt.Errorf("豆瓣页提交需要 movie-id（清单格式：<url> <movie-id>）")
		}
		p.Action = domain.ActionSubmitDouban
	default:
		p.Action = domain.ActionSubmit
	}

	if !force && ledger.Done(p) {
		p.Action = domain.ActionSkip
	}
	return p, nil
}

// Command 把计划翻译为发给页面执行端的命令。
func Command(p domain.ItemPlan, server, token string) (channel.Command, error) {
	switch p.Action {
	case domain.ActionExtractDouban:
		return channel.ExtractDouban{}, nil
	case domain.ActionExtract:
		return channel.ExtractRarbg{}, nil
	case domain.ActionSubmitDouban:
		return channel.ExtractAndSubmitDouban{MovieID: string(p.MovieID), Server: server, SessionToken: token}, nil
	case domain.ActionSubmit:
		if p.Kind == "yinfans" {
			return channel.ExtractAndSubmitYinfans{URL: p.URL, Server: server, SessionToken: token}, nil
		}
		return channel.ExtractAndSubmitRarbg{Server: server, SessionToken: token}, nil
	default:
		return nil, fmt.Errorf("动作 %q 不对应任何命令", p.Action)
	}
}

// SortPlans 让上层在需要时可显式保证稳定顺序。
func SortPlans(plans []domain.ItemPlan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].URL < plans[j].URL })
}
