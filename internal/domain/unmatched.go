package domain

const (
	RejectInvalidURL  = "invalid_url"
	RejectUnsupported = "unsupported"
	RejectInvalidLine = "invalid_line"
)

// Rejected 描述无法进入执行阶段的清单条目。
type Rejected struct {
	Target Target
	Kind   string // RejectInvalidURL | RejectUnsupported | RejectInvalidLine
	Reason string
}
