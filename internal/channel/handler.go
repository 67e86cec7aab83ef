package channel

import "context"

// Result 是处理器成功时的产物：data 与面向用户的 message 都可省略。
type Result struct {
	Data    any
	Message string
}

// Handler 处理单一 action 的命令。返回 error 时回复 {success:false, error}。
type Handler interface {
	Serve(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Serve(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// Deferred 由异步回复的处理器实现：执行端先告知宿主保持通道，再在后台完成并回复。
// 未实现 Deferred 的处理器必须在 Dispatch 返回前回复。
type Deferred interface {
	Handler
	Deferred()
}

type deferred struct{ Handler }

func (deferred) Deferred() {}

// Async 把处理器声明为异步回复。
func Async(h Handler) Handler {
	if _, ok := h.(Deferred); ok {
		return h
	}
	return deferred{h}
}

func isDeferred(h Handler) bool {
	_, ok := h.(Deferred)
	return ok
}
