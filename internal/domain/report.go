package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusSubmitted   = "submitted"
	StatusExtracted   = "extracted"
	StatusSkipped     = "skipped"
	StatusUnsupported = "unsupported"
	StatusFailed      = "failed"
)

const (
	ErrCodeNotFound        = "not_found"
	ErrCodeParseFailed     = "parse_failed"
	ErrCodeChannelNotReady = "channel_not_ready"
	ErrCodeTransportFailed = "transport_failed"
	ErrCodeInvalidCommand  = "invalid_command"
	ErrCodeLoadFailed      = "load_failed"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeInvalidInput    = "invalid_input"
)

// RunReport 是 harvest 批处理的对外稳定输出（stdout JSON / report.json）。
type RunReport struct {
	Server string `json:"server"`
	Submit bool   `json:"submit"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Submitted   int `json:"submitted"`
	Extracted   int `json:"extracted"`
	Skipped     int `json:"skipped"`
	Unsupported int `json:"unsupported"`
	Failed      int `json:"failed"`
}

type ItemResult struct {
	URL      string   `json:"url"`
	Sources  []string `json:"sources"`
	PageType string   `json:"page_type"`
	Action   string   `json:"action"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Title   string `json:"title"`
	Links   int    `json:"links"`
	Message string `json:"message,omitempty"`
	// OutDir 是导出目录；未启用导出时为空。
	OutDir string `json:"out_dir,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 url 字典序；url=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].URL
		b := r.Items[j].URL
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusSubmitted:
			s.Submitted++
		case StatusExtracted:
			s.Extracted++
		case StatusSkipped:
			s.Skipped++
		case StatusUnsupported:
			s.Unsupported++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
