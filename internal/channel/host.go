package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/John-Robertt/MDM/internal/dom"
)

var (
	// ErrNoReceiver 对应“接收端不存在”：标签页上尚未安装任何监听。
	ErrNoReceiver = errors.New("接收端不存在")
	// ErrNoResponse 表示监听收到命令但既未回复也未声明异步回复。
	ErrNoResponse = errors.New("接收端未回复")
	ErrNoTab      = errors.New("标签页不存在")
)

// TabID 标识宿主上的一个页面上下文。
type TabID string

// Listener 是安装在页面上的消息监听；Executor 实现它。
type Listener interface {
	Dispatch(ctx context.Context, cmd Command, reply func(Response)) bool
}

// Env 是执行端入口被求值时拿到的页面上下文。
//
// Latch 属于页面而不是某次注入：同一页面上多次求值入口拿到的是同一把闩锁。
type Env struct {
	Page   dom.Page
	Latch  *Latch
	Listen func(Listener)
}

// EntryPoint 是执行端脚本；每次注入都会求值一次。
type EntryPoint func(ctx context.Context, env Env)

type tab struct {
	page  dom.Page
	latch Latch

	// sending 是容量为 1 的信号量：同一标签页同时只有一条命令在途。
	sending chan struct{}

	mu        sync.Mutex
	listeners []Listener
}

func (t *tab) listen(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

func (t *tab) snapshot() []Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Listener(nil), t.listeners...)
}

// Host 扮演浏览器扩展运行时：持有标签页，负责注入执行端与投递消息。
//
// 命令与回复在边界上都经过一次 JSON 编解码，与真实消息通道的结构化克隆语义一致。
type Host struct {
	entry EntryPoint
	log   *slog.Logger

	mu   sync.Mutex
	tabs map[TabID]*tab
}

func NewHost(entry EntryPoint, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{entry: entry, log: log, tabs: map[TabID]*tab{}}
}

// OpenTab 登记一个页面并返回其标识。此时页面上没有任何监听。
func (h *Host) OpenTab(p dom.Page) TabID {
	id := TabID(uuid.NewString())
	h.mu.Lock()
	h.tabs[id] = &tab{page: p, sending: make(chan struct{}, 1)}
	h.mu.Unlock()
	return id
}

func (h *Host) CloseTab(id TabID) {
	h.mu.Lock()
	delete(h.tabs, id)
	h.mu.Unlock()
}

// Page 返回标签页承载的页面。
func (h *Host) Page(id TabID) (dom.Page, error) {
	t, err := h.tab(id)
	if err != nil {
		return nil, err
	}
	return t.page, nil
}

func (h *Host) tab(id TabID) (*tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w：%s", ErrNoTab, id)
	}
	return t, nil
}

// Inject 在标签页上求值执行端入口。重复注入不报错，是否重复安装监听由入口自己的闩锁决定。
func (h *Host) Inject(ctx context.Context, id TabID) error {
	t, err := h.tab(id)
	if err != nil {
		return err
	}
	if h.entry == nil {
		return errors.New("未配置执行端入口")
	}
	h.entry(ctx, Env{Page: t.page, Latch: &t.latch, Listen: t.listen})
	return nil
}

// Listeners 返回标签页上已安装的监听数。
func (h *Host) Listeners(id TabID) int {
	t, err := h.tab(id)
	if err != nil {
		return 0
	}
	return len(t.snapshot())
}

// SendMessage 发送一条命令并返回第一条回复。
func (h *Host) SendMessage(ctx context.Context, id TabID, cmd Command) (Response, error) {
	replies, err := h.Deliver(ctx, id, cmd)
	if err != nil {
		return Response{}, err
	}
	return replies[0], nil
}

// Deliver 把命令投递给标签页上的每个监听，返回收到的全部回复（按监听安装顺序）。
//
// 同一标签页上的命令串行投递：前一条拿到回复（或 ctx 取消）之前，后一条在此等待。
func (h *Host) Deliver(ctx context.Context, id TabID, cmd Command) ([]Response, error) {
	t, err := h.tab(id)
	if err != nil {
		return nil, err
	}
	select {
	case t.sending <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.sending }()

	listeners := t.snapshot()
	if len(listeners) == 0 {
		return nil, ErrNoReceiver
	}

	wire, err := Encode(cmd)
	if err != nil {
		return nil, err
	}
	cid := uuid.NewString()
	log := h.log.With("tab", string(id), "cid", cid, "action", cmd.Action())
	log.DebugContext(ctx, "投递命令")

	var replies []Response
	for _, l := range listeners {
		decoded, err := Decode(wire)
		if err != nil {
			return nil, err
		}

		ch := make(chan []byte, 1)
		keepOpen := l.Dispatch(ctx, decoded, func(r Response) {
			b, err := json.Marshal(r)
			if err != nil {
				b, _ = json.Marshal(Fail(err))
			}
			ch <- b
		})

		var raw []byte
		if keepOpen {
			select {
			case raw = <-ch:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			select {
			case raw = <-ch:
			default:
				log.WarnContext(ctx, "监听未回复")
				continue
			}
		}

		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("回复不是合法 JSON：%w", err)
		}
		replies = append(replies, r)
	}
	if len(replies) == 0 {
		return nil, ErrNoResponse
	}
	log.DebugContext(ctx, "收到回复", "count", len(replies), "success", replies[0].Success)
	return replies, nil
}
