package domain

// Target 是 URL 清单中的一行：地址，可选的入库 MovieID，以及来源位置（file:line）。
type Target struct {
	URL     string
	MovieID MovieID
	Source  string
}

// WorkItem 是按规范化 URL 去重后的工作单元。
// 同一 URL 在清单中出现多次时合并为一个条目，Sources 保留全部出处。
type WorkItem struct {
	URL     string
	Kind    string
	MovieID MovieID
	Sources []string
}
