package channel

import (
	"encoding/json"
	"fmt"
)

// Response 是执行端对一条命令的唯一回复。
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK 构造成功回复；data 为 nil 时不带 data 字段。
func OK(data any, message string) Response {
	r := Response{Success: true, Message: message}
	if data == nil {
		return r
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Fail(fmt.Errorf("编码回复数据失败：%w", err))
	}
	r.Data = b
	return r
}

// Fail 构造失败回复。
func Fail(err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{Success: false, Error: msg}
}

// RemoteError 是执行端回复的失败（{success:false, error}）。
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return e.Msg }

// Err 在回复失败时返回 *RemoteError，成功时返回 nil。
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "unknown error"
	}
	return &RemoteError{Msg: msg}
}
