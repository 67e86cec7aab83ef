// Package site 把“站点差异”限制为数据：每个站点一份 Plan（触发器、容器、超时、规范化器），
// 由同一个 Orchestrator 状态机执行。
package site

import (
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/John-Robertt/MDM/internal/extract"
)

// Kind 是页面类型。
type Kind string

const (
	KindDouban      Kind = "douban"
	KindYinfans     Kind = "yinfans"
	KindRarbg       Kind = "rarbg"
	KindYTS         Kind = "yts"
	KindMovieDB     Kind = "movie-db"
	KindUnsupported Kind = "unsupported"
)

// Plan 描述一个下载表格类站点的抽取方式。
//
// 约束：
// - Trigger 为空表示无需点击（容器本来就在页面上或自行出现）
// - Container/Trigger 必须是合法 CSS 选择器（NewRegistry 时校验）
type Plan struct {
	Kind Kind

	Trigger        string
	TriggerTimeout time.Duration

	Container        string
	ContainerTimeout time.Duration

	Normalizer extract.RecordNormalizer
}

// Validate 校验选择器与超时。
func (p Plan) Validate() error {
	if strings.TrimSpace(string(p.Kind)) == "" {
		return fmt.Errorf("plan.Kind 不能为空")
	}
	if p.Normalizer == nil {
		return fmt.Errorf("%s：normalizer 不能为空", p.Kind)
	}
	if _, err := cascadia.Compile(p.Container); err != nil {
		return fmt.Errorf("%s：container 选择器无效：%w", p.Kind, err)
	}
	if p.ContainerTimeout <= 0 {
		return fmt.Errorf("%s：container 超时必须为正", p.Kind)
	}
	if p.Trigger != "" {
		if _, err := cascadia.Compile(p.Trigger); err != nil {
			return fmt.Errorf("%s：trigger 选择器无效：%w", p.Kind, err)
		}
		if p.TriggerTimeout <= 0 {
			return fmt.Errorf("%s：trigger 超时必须为正", p.Kind)
		}
	}
	return nil
}

// Registry 是 Plan 的只读注册表（按 Kind 索引）。
type Registry struct {
	byKind map[Kind]Plan
}

func NewRegistry(plans ...Plan) (Registry, error) {
	byKind := make(map[Kind]Plan, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return Registry{}, err
		}
		if _, ok := byKind[p.Kind]; ok {
			return Registry{}, fmt.Errorf("重复的 plan：%q", p.Kind)
		}
		byKind[p.Kind] = p
	}
	return Registry{byKind: byKind}, nil
}

func (r Registry) Get(k Kind) (Plan, bool) {
	if r.byKind == nil {
		return Plan{}, false
	}
	p, ok := r.byKind[k]
	return p, ok
}

// Options 是各站点 Plan 共用的可调参数；零值使用站点默认值。
type Options struct {
	ContainerTimeout time.Duration
	CoverDeadline    time.Duration
}

// Or 返回 v，若 v<=0 则返回 d。
func Or(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}
