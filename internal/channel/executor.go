package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Executor 是页面一侧的命令分派表：每个 action 对应一个处理器。
// ping 默认已注册，同步回复 {success:true}。
type Executor struct {
	handlers map[Action]Handler
	log      *slog.Logger
}

func NewExecutor(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	e := &Executor{handlers: map[Action]Handler{}, log: log}
	e.Handle(ActionPing, HandlerFunc(func(context.Context, Command) (Result, error) {
		return Result{}, nil
	}))
	return e
}

// Handle 注册处理器；同一 action 重复注册时后者覆盖前者。
func (e *Executor) Handle(a Action, h Handler) {
	e.handlers[a] = h
}

// Dispatch 处理一条命令，并保证 reply 恰好被调用一次。
//
// 返回 true 表示回复将异步到达（宿主需保持通道直到 reply 被调用）；
// 返回 false 表示 reply 已在返回前调用完毕。
func (e *Executor) Dispatch(ctx context.Context, cmd Command, reply func(Response)) bool {
	once := onceReply(reply)

	if cmd == nil {
		once(Fail(fmt.Errorf("命令为空")))
		return false
	}
	h, ok := e.handlers[cmd.Action()]
	if !ok {
		once(Fail(&UnknownActionError{Action: string(cmd.Action())}))
		return false
	}
	if err := cmd.Validate(); err != nil {
		e.log.WarnContext(ctx, "命令校验失败", "action", cmd.Action(), "err", err)
		once(Fail(err))
		return false
	}

	if !isDeferred(h) {
		once(e.serve(ctx, h, cmd))
		return false
	}
	go func() {
		once(e.serve(ctx, h, cmd))
	}()
	return true
}

// serve 是失败边界：处理器的 error 与 panic 都变成失败回复，不会逃逸到宿主。
func (e *Executor) serve(ctx context.Context, h Handler, cmd Command) Response {
	var (
		res Result
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		res, err = h.Serve(ctx, cmd)
	})
	if rec := pc.Recovered(); rec != nil {
		e.log.ErrorContext(ctx, "处理器 panic", "action", cmd.Action(), "panic", rec.Value)
		return Fail(rec.AsError())
	}
	if err != nil {
		e.log.WarnContext(ctx, "处理命令失败", "action", cmd.Action(), "err", err)
		return Fail(err)
	}
	return OK(res.Data, res.Message)
}

func onceReply(reply func(Response)) func(Response) {
	var once sync.Once
	return func(r Response) {
		once.Do(func() {
			if reply != nil {
				reply(r)
			}
		})
	}
}
