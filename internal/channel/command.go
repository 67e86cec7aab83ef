// Package channel 实现指挥端（Commander）与页面执行端（Executor）之间的请求/响应协议。
//
// 线上格式是 JSON：请求 {action, ...}，响应 {success, data?, message?, error?}。
// 命令在边界处一次性解码为具体类型（Command 的各个变体），之后只按类型分派。
package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/John-Robertt/MDM/internal/domain"
)

// Action 是命令的判别字段。
type Action string

const (
	ActionPing                    Action = "ping"
	ActionExtractDouban           Action = "extractDouban"
	ActionExtractRarbg            Action = "extractRarbg"
	ActionExtractAndSubmitDouban  Action = "extractAndSubmitDouban"
	ActionExtractAndSubmitYinfans Action = "extractAndSubmitYinfans"
	ActionExtractAndSubmitRarbg   Action = "extractAndSubmitRarbg"
)

// Command 是全部命令变体的公共接口。
type Command interface {
	Action() Action
	Validate() error
}

type Ping struct{}

type ExtractDouban struct{}

type ExtractRarbg struct{}

type ExtractAndSubmitDouban struct {
	MovieID      string `json:"movieId"`
	Server       string `json:"whichServer"`
	SessionToken string `json:"sessionToken"`
}

type ExtractAndSubmitYinfans struct {
	URL          string `json:"url"`
	Server       string `json:"whichServer"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type ExtractAndSubmitRarbg struct {
	Server       string `json:"whichServer"`
	SessionToken string `json:"sessionToken"`
}

func (Ping) Action() Action                    { return ActionPing }
func (ExtractDouban) Action() Action           { return ActionExtractDouban }
func (ExtractRarbg) Action() Action            { return ActionExtractRarbg }
func (ExtractAndSubmitDouban) Action() Action  { return ActionExtractAndSubmitDouban }
func (ExtractAndSubmitYinfans) Action() Action { return ActionExtractAndSubmitYinfans }
func (ExtractAndSubmitRarbg) Action() Action   { return ActionExtractAndSubmitRarbg }

func (Ping) Validate() error          { return nil }
func (ExtractDouban) Validate() error { return nil }
func (ExtractRarbg) Validate() error  { return nil }

func (c ExtractAndSubmitDouban) Validate() error {
	if strings.TrimSpace(c.MovieID) == "" {
		return &ValidationError{Field: "movieId", Msg: "请输入电影 ID"}
	}
	if _, ok := domain.ParseMovieID(c.MovieID); !ok {
		return &ValidationError{Field: "movieId", Msg: fmt.Sprintf("电影 ID 格式不正确：%q", c.MovieID)}
	}
	if err := validateServer(c.Server); err != nil {
		return err
	}
	return requireToken(c.SessionToken)
}

func (c ExtractAndSubmitYinfans) Validate() error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return &ValidationError{Field: "url", Msg: "请输入 yinfans 电影地址"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Msg: fmt.Sprintf("地址格式不正确：%q", raw)}
	}
	return validateServer(c.Server)
}

func (c ExtractAndSubmitRarbg) Validate() error {
	if err := validateServer(c.Server); err != nil {
		return err
	}
	return requireToken(c.SessionToken)
}

// ValidationError 是命令字段校验失败；它在发送前产生，不会触达执行端。
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + "：" + e.Msg
}

func validateServer(s string) error {
	switch s {
	case "local", "prod":
		return nil
	default:
		return &ValidationError{Field: "whichServer", Msg: fmt.Sprintf("只能是 local 或 prod，实际是 %q", s)}
	}
}

func requireToken(t string) error {
	if strings.TrimSpace(t) == "" {
		return &ValidationError{Field: "sessionToken", Msg: "请先提取或加载会话 token"}
	}
	return nil
}

// Encode 把命令编码为带 action 的 JSON 对象。
func Encode(c Command) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("command 不能为空")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	action, _ := json.Marshal(c.Action())
	fields["action"] = action
	return json.Marshal(fields)
}

// UnknownActionError 表示 action 不属于任何已知变体。
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("未知的 action：%q", e.Action)
}

// Decode 按 action 判别字段解码为具体命令。
func Decode(b []byte) (Command, error) {
	var head struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("命令不是合法 JSON：%w", err)
	}

	var c Command
	switch head.Action {
	case ActionPing:
		return Ping{}, nil
	case ActionExtractDouban:
		return ExtractDouban{}, nil
	case ActionExtractRarbg:
		return ExtractRarbg{}, nil
	case ActionExtractAndSubmitDouban:
		var v ExtractAndSubmitDouban
		err := json.Unmarshal(b, &v)
		c = v
		return c, err
	case ActionExtractAndSubmitYinfans:
		var v ExtractAndSubmitYinfans
		err := json.Unmarshal(b, &v)
		c = v
		return c, err
	case ActionExtractAndSubmitRarbg:
		var v ExtractAndSubmitRarbg
		err := json.Unmarshal(b, &v)
		c = v
		return c, err
	default:
		return nil, &UnknownActionError{Action: string(head.Action)}
	}
}
