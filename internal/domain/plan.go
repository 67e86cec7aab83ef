package domain

const (
	ActionExtract       = "extract"
	ActionSubmit        = "submit"
	ActionExtractDouban = "extract_douban"
	ActionSubmitDouban  = "submit_douban"
	ActionSkip          = "skip"
)

// ItemPlan 是对某个 URL 的执行计划：页面类型决定用哪个 Plan，Action 决定发哪条命令。
type ItemPlan struct {
	URL     string
	Kind    string
	MovieID MovieID
	Action  string
}

// Submits 报告计划是否会向入库服务提交。
func (p ItemPlan) Submits() bool {
	return p.Action == ActionSubmit || p.Action == ActionSubmitDouban
}
