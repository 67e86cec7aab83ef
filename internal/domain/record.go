package domain

// ExtractedRecord 是一次页面抽取得到的规范化记录（与站点无关的统一形态）。
//
// 约束：
// - Title 已经过站点后缀清洗
// - Year 为 nil 表示“未知年份”，与真实年份严格区分
// - Links 的顺序等于表格行顺序
type ExtractedRecord struct {
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	Year       *int        `json:"year"`
	CoverImage *CoverImage `json:"coverImage"`
	Links      []LinkInfo  `json:"links"`
}

// CoverImage 描述封面图；整个结构为 nil 表示页面上根本没有图片节点。
type CoverImage struct {
	Src   *string `json:"src"`
	Title *string `json:"title"`
	Alt   *string `json:"alt"`
}

// LinkInfo 是下载表格中的一行。Source 为大写规范化后的来源标记（例如 BLURAY）。
type LinkInfo struct {
	Quality  string  `json:"quality"`
	Size     string  `json:"size"`
	Source   string  `json:"source"`
	Magnet   *string `json:"magnet"`
	Download *string `json:"download"`
}

// YinfansItem 是 yinfans 页面上的一条磁力条目。
type YinfansItem struct {
	Link    string `json:"link"`
	Quality string `json:"quality"`
	Size    string `json:"size"`
	Title   string `json:"title"`
}

// StrPtr 把空串映射为 nil，其它值取地址。
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Str 解引用；nil 返回空串。
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// IntPtr 返回 n 的指针。
func IntPtr(n int) *int { return &n }
