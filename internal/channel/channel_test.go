package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/dom"
)

func guardedEntry(installs *atomic.Int32) EntryPoint {
	return func(ctx context.Context, env Env) {
		env.Latch.Do(func() {
			installs.Add(1)
			env.Listen(NewExecutor(nil))
		})
	}
}

func newTab(t *testing.T, entry EntryPoint) (*Host, TabID) {
	t.Helper()
	h := NewHost(entry, nil)
	return h, h.OpenTab(dom.MustMemPage("https://rarbg.example/movie/1", "<html><body></body></html>"))
}

func TestHost_DuplicateInjectInstallsOneListener(t *testing.T) {
	var installs atomic.Int32
	h, id := newTab(t, guardedEntry(&installs))
	ctx := context.Background()

	require.NoError(t, h.Inject(ctx, id))
	require.NoError(t, h.Inject(ctx, id))

	replies, err := h.Deliver(ctx, id, Ping{})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.True(t, replies[0].Success)
	require.Equal(t, int32(1), installs.Load())
	require.Equal(t, 1, h.Listeners(id))
}

func TestHost_UnguardedEntryRepliesTwice(t *testing.T) {
	h, id := newTab(t, func(ctx context.Context, env Env) {
		env.Listen(NewExecutor(nil))
	})
	ctx := context.Background()
	require.NoError(t, h.Inject(ctx, id))
	require.NoError(t, h.Inject(ctx, id))

	replies, err := h.Deliver(ctx, id, Ping{})
	require.NoError(t, err)
	require.Len(t, replies, 2)
}

func TestHost_NoReceiverBeforeInject(t *testing.T) {
	var installs atomic.Int32
	h, id := newTab(t, guardedEntry(&installs))

	_, err := h.SendMessage(context.Background(), id, Ping{})
	require.ErrorIs(t, err, ErrNoReceiver)

	_, err = h.SendMessage(context.Background(), TabID("missing"), Ping{})
	require.ErrorIs(t, err, ErrNoTab)
}

func TestHost_OneCommandInFlightPerTab(t *testing.T) {
	var inFlight, peak atomic.Int32
	h, id := newTab(t, func(ctx context.Context, env Env) {
		e := NewExecutor(nil)
		e.Handle(ActionExtractRarbg, Async(HandlerFunc(func(ctx context.Context, _ Command) (Result, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(100 * time.Millisecond)
			inFlight.Add(-1)
			return Result{}, nil
		})))
		env.Listen(e)
	})
	ctx := context.Background()
	require.NoError(t, h.Inject(ctx, id))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.SendMessage(ctx, id, ExtractRarbg{})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int32(1), peak.Load())
}

func TestHost_QueuedCommandHonoursContext(t *testing.T) {
	release := make(chan struct{})
	h, id := newTab(t, func(ctx context.Context, env Env) {
		e := NewExecutor(nil)
		e.Handle(ActionExtractRarbg, Async(HandlerFunc(func(ctx context.Context, _ Command) (Result, error) {
			<-release
			return Result{}, nil
		})))
		env.Listen(e)
	})
	require.NoError(t, h.Inject(context.Background(), id))

	first := make(chan error, 1)
	go func() {
		_, err := h.SendMessage(context.Background(), id, ExtractRarbg{})
		first <- err
	}()
	tb, err := h.tab(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tb.sending) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.SendMessage(ctx, id, Ping{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-first)
}

func TestExecutor_AsyncHandlerKeepsChannelOpen(t *testing.T) {
	e := NewExecutor(nil)
	release := make(chan struct{})
	e.Handle(ActionExtractRarbg, Async(HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		<-release
		return Result{Data: map[string]int{"n": 2}, Message: "ok"}, nil
	})))

	got := make(chan Response, 1)
	keepOpen := e.Dispatch(context.Background(), ExtractRarbg{}, func(r Response) { got <- r })
	require.True(t, keepOpen)
	select {
	case <-got:
		t.Fatal("异步处理器不应在返回前回复")
	default:
	}

	close(release)
	r := <-got
	require.True(t, r.Success)
	require.JSONEq(t, `{"n":2}`, string(r.Data))
	require.Equal(t, "ok", r.Message)
}

func TestExecutor_PingIsSynchronous(t *testing.T) {
	var got []Response
	keepOpen := NewExecutor(nil).Dispatch(context.Background(), Ping{}, func(r Response) { got = append(got, r) })
	require.False(t, keepOpen)
	require.Equal(t, []Response{{Success: true}}, got)
}

func TestExecutor_FailureBoundary(t *testing.T) {
	e := NewExecutor(nil)
	e.Handle(ActionExtractDouban, HandlerFunc(func(context.Context, Command) (Result, error) {
		panic("boom")
	}))
	e.Handle(ActionExtractRarbg, Async(HandlerFunc(func(context.Context, Command) (Result, error) {
		return Result{}, errors.New("提交失败: 401")
	})))

	var r Response
	require.False(t, e.Dispatch(context.Background(), ExtractDouban{}, func(x Response) { r = x }))
	require.False(t, r.Success)
	require.Contains(t, r.Error, "boom")

	ch := make(chan Response, 1)
	require.True(t, e.Dispatch(context.Background(), ExtractRarbg{}, func(x Response) { ch <- x }))
	r = <-ch
	require.False(t, r.Success)
	require.Equal(t, "提交失败: 401", r.Error)
}

func TestExecutor_RejectsInvalidAndUnknown(t *testing.T) {
	e := NewExecutor(nil)
	var called atomic.Bool
	e.Handle(ActionExtractAndSubmitDouban, Async(HandlerFunc(func(context.Context, Command) (Result, error) {
		called.Store(true)
		return Result{}, nil
	})))

	var r Response
	keepOpen := e.Dispatch(context.Background(), ExtractAndSubmitDouban{Server: "prod", SessionToken: "t"}, func(x Response) { r = x })
	require.False(t, keepOpen)
	require.False(t, r.Success)
	require.Contains(t, r.Error, "movieId")
	require.False(t, called.Load())

	e.Dispatch(context.Background(), ExtractRarbg{}, func(x Response) { r = x })
	require.False(t, r.Success)
	require.Contains(t, r.Error, "extractRarbg")
}

func TestEncodeDecode_Discriminator(t *testing.T) {
	b, err := Encode(ExtractAndSubmitRarbg{Server: "prod", SessionToken: "abc"})
	require.NoError(t, err)
	require.JSONEq(t, `{"action":"extractAndSubmitRarbg","whichServer":"prod","sessionToken":"abc"}`, string(b))

	c, err := Decode([]byte(`{"action":"extractAndSubmitYinfans","url":"https://www.yinfans.me/movie/1","whichServer":"local"}`))
	require.NoError(t, err)
	require.Equal(t, ExtractAndSubmitYinfans{URL: "https://www.yinfans.me/movie/1", Server: "local"}, c)

	b, err = Encode(Ping{})
	require.NoError(t, err)
	require.JSONEq(t, `{"action":"ping"}`, string(b))

	_, err = Decode([]byte(`{"action":"deleteEverything"}`))
	var ua *UnknownActionError
	require.ErrorAs(t, err, &ua)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		cmd   Command
		field string
	}{
		{"douban ok", ExtractAndSubmitDouban{MovieID: "cm1", Server: "prod", SessionToken: "t"}, ""},
		{"douban empty id", ExtractAndSubmitDouban{MovieID: "  ", Server: "prod", SessionToken: "t"}, "movieId"},
		{"douban bad id", ExtractAndSubmitDouban{MovieID: "../x", Server: "prod", SessionToken: "t"}, "movieId"},
		{"douban no token", ExtractAndSubmitDouban{MovieID: "cm1", Server: "prod"}, "sessionToken"},
		{"rarbg bad server", ExtractAndSubmitRarbg{Server: "staging", SessionToken: "t"}, "whichServer"},
		{"rarbg no token", ExtractAndSubmitRarbg{Server: "local"}, "sessionToken"},
		{"yinfans ok without token", ExtractAndSubmitYinfans{URL: "https://www.yinfans.me/movie/1", Server: "local"}, ""},
		{"yinfans empty url", ExtractAndSubmitYinfans{Server: "local"}, "url"},
		{"yinfans ftp", ExtractAndSubmitYinfans{URL: "ftp://x/y", Server: "local"}, "url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestResponse_WireShape(t *testing.T) {
	b, err := json.Marshal(OK(nil, ""))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true}`, string(b))

	b, err = json.Marshal(Fail(errors.New("x")))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":false,"error":"x"}`, string(b))

	require.NoError(t, OK(1, "").Err())
	var re *RemoteError
	require.ErrorAs(t, Fail(errors.New("x")).Err(), &re)
}

type fakeMessenger struct {
	injectErr error
	calls     []Action
	// fail 按调用顺序决定 SendMessage 是否返回通道错误。
	fail []bool
}

func (f *fakeMessenger) Inject(context.Context, TabID) error { return f.injectErr }

func (f *fakeMessenger) SendMessage(_ context.Context, _ TabID, cmd Command) (Response, error) {
	i := len(f.calls)
	f.calls = append(f.calls, cmd.Action())
	if i < len(f.fail) && f.fail[i] {
		return Response{}, ErrNoReceiver
	}
	return Response{Success: true, Message: "ok"}, nil
}

func recordSleeps(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestCommander_HappyPath(t *testing.T) {
	m := &fakeMessenger{injectErr: errors.New("already injected")}
	var slept []time.Duration
	c := NewCommander(m)
	c.Sleep = recordSleeps(&slept)

	resp, err := c.Send(context.Background(), "t1", ExtractAndSubmitRarbg{Server: "prod", SessionToken: "abc"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, []Action{ActionPing, ActionExtractAndSubmitRarbg}, m.calls)
	require.Equal(t, []time.Duration{DefaultInitDelay}, slept)
}

func TestCommander_PingFailureWaitsThenSends(t *testing.T) {
	m := &fakeMessenger{fail: []bool{true}}
	var slept []time.Duration
	c := NewCommander(m)
	c.Sleep = recordSleeps(&slept)

	resp, err := c.Send(context.Background(), "t1", ExtractRarbg{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	// ping 不重试：只有一次 ping，随后直接发送真实命令。
	require.Equal(t, []Action{ActionPing, ActionExtractRarbg}, m.calls)
	require.Equal(t, []time.Duration{DefaultInitDelay, DefaultRetryDelay}, slept)
}

func TestCommander_ScriptNotReady(t *testing.T) {
	m := &fakeMessenger{fail: []bool{true, true}}
	c := NewCommander(m)
	c.Sleep = func(context.Context, time.Duration) error { return nil }

	_, err := c.Send(context.Background(), "t1", ExtractRarbg{})
	require.ErrorIs(t, err, ErrScriptNotReady)
	require.Contains(t, err.Error(), "请刷新页面后重试")
}

func TestCommander_ValidationNeverSends(t *testing.T) {
	m := &fakeMessenger{}
	c := NewCommander(m)
	c.Sleep = func(context.Context, time.Duration) error { return nil }

	_, err := c.Send(context.Background(), "t1", ExtractAndSubmitDouban{Server: "prod", SessionToken: "t"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Empty(t, m.calls)
}

func TestCommander_WithHostEndToEnd(t *testing.T) {
	var installs atomic.Int32
	h, id := newTab(t, guardedEntry(&installs))
	c := NewCommander(h)
	c.InitDelay = time.Millisecond
	c.RetryDelay = time.Millisecond

	for i := 0; i < 2; i++ {
		resp, err := c.Send(context.Background(), id, Ping{})
		require.NoError(t, err)
		require.True(t, resp.Success)
	}
	require.Equal(t, int32(1), installs.Load())
}
