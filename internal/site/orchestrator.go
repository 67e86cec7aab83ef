package site

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/John-Robertt/MDM/internal/dom"
	"github.com/John-Robertt/MDM/internal/domain"
)

var tracer = otel.Tracer("github.com/John-Robertt/MDM/internal/site")

// State 是一次页面抽取的状态。
type State int

const (
	Idle State = iota
	AwaitingTrigger
	AwaitingContainer
	Extracting
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingTrigger:
		return "awaiting_trigger"
	case AwaitingContainer:
		return "awaiting_container"
	case Extracting:
		return "extracting"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Orchestrator 按 Plan 执行：触发 -> 等容器 -> 规范化（含封面）。
//
// 状态机：Idle -> AwaitingTrigger -> AwaitingContainer -> Extracting -> Done | Aborted。
// 所有站点共用同一形态，差异只在 Plan。
type Orchestrator struct {
	Plan Plan
	// OnState 在每次状态迁移时调用（可选）。
	OnState func(State)
}

// Run 对页面执行一次抽取。容器不出现或规范化失败时返回 (零值, false)，不会返回错误。
func (o *Orchestrator) Run(ctx context.Context, p dom.Page) (domain.ExtractedRecord, bool) {
	ctx, span := tracer.Start(ctx, "site.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("site.kind", string(o.Plan.Kind)),
		attribute.String("page.url", p.URL().String()),
	)

	log := slog.With("kind", o.Plan.Kind, "url", p.URL().String())
	o.enter(Idle)

	o.enter(AwaitingTrigger)
	if o.Plan.Trigger != "" {
		o.trigger(ctx, p, log)
	}

	o.enter(AwaitingContainer)
	container := dom.AwaitElement(ctx, p, o.Plan.Container, o.Plan.ContainerTimeout)
	if container == nil {
		log.WarnContext(ctx, "未找到下载表格，放弃抽取", "selector", o.Plan.Container, "timeout", o.Plan.ContainerTimeout)
		span.SetStatus(codes.Error, "container not found")
		o.enter(Aborted)
		return domain.ExtractedRecord{}, false
	}

	o.enter(Extracting)
	rec, err := o.Plan.Normalizer.Normalize(ctx, p, container)
	if err != nil {
		log.WarnContext(ctx, "规范化失败", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.enter(Aborted)
		return domain.ExtractedRecord{}, false
	}

	span.SetAttributes(attribute.Int("record.links", len(rec.Links)))
	log.DebugContext(ctx, "抽取完成", "title", rec.Title, "links", len(rec.Links))
	o.enter(Done)
	return rec, true
}

// trigger 等待触发器并点击；原生点击失败则派发合成事件；两者都失败也继续（容器可能已在页面上）。
func (o *Orchestrator) trigger(ctx context.Context, p dom.Page, log *slog.Logger) {
	if dom.AwaitElement(ctx, p, o.Plan.Trigger, o.Plan.TriggerTimeout) == nil {
		log.DebugContext(ctx, "未找到触发器", "selector", o.Plan.Trigger)
		return
	}
	err := p.Click(ctx, o.Plan.Trigger)
	if err == nil {
		return
	}
	log.DebugContext(ctx, "原生点击失败，改为派发 click 事件", "err", err)
	if err := p.DispatchClick(ctx, o.Plan.Trigger); err != nil {
		log.WarnContext(ctx, "触发器点击失败，继续等待容器", "err", err)
	}
}

func (o *Orchestrator) enter(s State) {
	if o.OnState != nil {
		o.OnState(s)
	}
}
