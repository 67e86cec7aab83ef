package nfo

import (
	"encoding/xml"
	"strings"

	"github.com/John-Robertt/MDM/internal/domain"
)

// PosterName 是导出目录中封面文件的固定文件名。
const PosterName = "poster.jpg"

type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title         string `xml:"title"`
	OriginalTitle string `xml:"originaltitle,omitempty"`
	SortTitle     string `xml:"sorttitle"`

	Premiered string `xml:"premiered,omitempty"`
	Year      int    `xml:"year,omitempty"`

	Poster string `xml:"poster,omitempty"`
	Thumb  string `xml:"thumb,omitempty"`

	Ratings *ratings `xml:"ratings,omitempty"`

	Tags []string `xml:"tag,omitempty"`

	Cover    string `xml:"cover,omitempty"`
	Website  string `xml:"website,omitempty"`
	UniqueID *uid   `xml:"uniqueid,omitempty"`
}

type ratings struct {
	Rating []rating `xml:"rating"`
}

type rating struct {
	Name    string  `xml:"name,attr"`
	Max     int     `xml:"max,attr"`
	Default bool    `xml:"default,attr"`
	Value   float64 `xml:"value"`
}

type uid struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

// Encode 把抽取记录（可选附带豆瓣信息）转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 年份优先取记录自身，缺失时回退到豆瓣 datePublished
// - tag 为各下载条目的画质，去空白、去重并保持表格顺序
// - 有豆瓣信息时 title 用豆瓣标题，记录标题作为 originaltitle
// - hasPoster=false 时不写 poster/thumb（封面下载失败也能产出 NFO）
func Encode(rec domain.ExtractedRecord, douban *domain.DoubanInfo, hasPoster bool) ([]byte, error) {
	title := strings.TrimSpace(rec.Title)
	m := movie{
		Title:     title,
		SortTitle: title,
		Website:   strings.TrimSpace(rec.URL),
	}
	if rec.Year != nil {
		m.Year = *rec.Year
	}
	if rec.CoverImage != nil {
		m.Cover = strings.TrimSpace(domain.Str(rec.CoverImage.Src))
	}
	if hasPoster {
		m.Poster = PosterName
		m.Thumb = PosterName
	}

	qualities := make([]string, 0, len(rec.Links))
	for _, l := range rec.Links {
		qualities = append(qualities, l.Quality)
	}
	m.Tags = normList(qualities)

	if douban != nil {
		if t := strings.TrimSpace(douban.Title); t != "" && t != title {
			m.OriginalTitle = title
			m.Title = t
		}
		m.Premiered = strings.TrimSpace(douban.DatePublished)
		if m.Year == 0 {
			m.Year = douban.Year()
		}
		if douban.Rating > 0 {
			m.Ratings = &ratings{Rating: []rating{{Name: "douban", Max: 10, Default: true, Value: douban.Rating}}}
		}
		if sp, ok := domain.DoubanSubjectPath(douban.URL); ok {
			m.UniqueID = &uid{Type: "douban", Default: true, Value: strings.TrimPrefix(sp, "/subject/")}
		}
	}
	if m.Title == "" {
		m.Title = m.Website
	}

	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
