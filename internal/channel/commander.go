package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultInitDelay  = 500 * time.Millisecond
	DefaultRetryDelay = time.Second
)

// ErrScriptNotReady 表示预热后真实命令仍然送达失败（页面脚本未就绪）。
var ErrScriptNotReady = errors.New("页面脚本未就绪，请刷新页面后重试")

// Messenger 是指挥端需要的宿主能力；*Host 实现它。
type Messenger interface {
	Inject(ctx context.Context, id TabID) error
	SendMessage(ctx context.Context, id TabID, cmd Command) (Response, error)
}

// Commander 是指挥端：校验 -> 注入 -> 等待初始化 -> ping -> 真实命令。
type Commander struct {
	Host Messenger

	InitDelay  time.Duration
	RetryDelay time.Duration
	// Sleep 可替换（测试用）；为空时使用可被 ctx 取消的定时器。
	Sleep func(ctx context.Context, d time.Duration) error
	Log   *slog.Logger
}

func NewCommander(host Messenger) *Commander {
	return &Commander{
		Host:       host,
		InitDelay:  DefaultInitDelay,
		RetryDelay: DefaultRetryDelay,
	}
}

// Send 执行完整的发送流程。
//
// 返回的 error 只表示命令没有得到回复（校验失败、通道不可用、ctx 结束）；
// 执行端回复的失败由 Response.Err() 表达。
func (c *Commander) Send(ctx context.Context, id TabID, cmd Command) (Response, error) {
	if cmd == nil {
		return Response{}, &ValidationError{Msg: "命令为空"}
	}
	if err := cmd.Validate(); err != nil {
		return Response{}, err
	}
	log := c.logger().With("tab", string(id), "action", cmd.Action())

	if err := c.Host.Inject(ctx, id); err != nil {
		// 已注入或页面不允许注入都不影响后续发送。
		log.DebugContext(ctx, "注入执行端失败，继续", "err", err)
	}
	if err := c.sleep(ctx, c.InitDelay); err != nil {
		return Response{}, err
	}

	if _, err := c.Host.SendMessage(ctx, id, Ping{}); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		log.InfoContext(ctx, "ping 未响应，稍后直接发送命令", "err", err)
		if err := c.sleep(ctx, c.RetryDelay); err != nil {
			return Response{}, err
		}
	}

	resp, err := c.Host.SendMessage(ctx, id, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		log.WarnContext(ctx, "命令送达失败", "err", err)
		return Response{}, fmt.Errorf("%w：%v", ErrScriptNotReady, err)
	}
	return resp, nil
}

func (c *Commander) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Commander) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
