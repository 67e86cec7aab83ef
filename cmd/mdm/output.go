package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/John-Robertt/MDM/internal/domain"
)

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderRecord(w io.Writer, rec domain.ExtractedRecord) {
	year := "?"
	if rec.Year != nil {
		year = strconv.Itoa(*rec.Year)
	}
	fmt.Fprintf(w, "%s (%s)\n%s\n", rec.Title, year, rec.URL)
	if rec.CoverImage != nil {
		fmt.Fprintf(w, "封面：%s\n", domain.Str(rec.CoverImage.Src))
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "画质", "大小", "来源", "链接"})
	for i, l := range rec.Links {
		link := domain.Str(l.Magnet)
		if link == "" {
			link = domain.Str(l.Download)
		}
		t.AppendRow(table.Row{i + 1, l.Quality, l.Size, l.Source, truncate(link, 80)})
	}
	t.Render()
}

func renderDouban(w io.Writer, info domain.DoubanInfo) {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"标题", info.Title},
		{"上映", info.DatePublished},
		{"评分", info.Rating},
		{"海报", info.Image},
		{"地址", info.URL},
	})
	t.Render()
}

// emitReport：stdout 是终端时输出摘要与失败明细表格，否则 stdout 只输出一个 RunReport JSON。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	s := rr.Summary
	summary := fmt.Sprintf("完成：submitted=%d extracted=%d skipped=%d unsupported=%d failed=%d\n",
		s.Submitted, s.Extracted, s.Skipped, s.Unsupported, s.Failed,
	)
	if !isTTY(stdout) {
		_ = json.NewEncoder(stdout).Encode(rr)
		fmt.Fprint(stderr, summary)
		return
	}

	fmt.Fprint(stdout, summary)
	if s.Failed == 0 && s.Unsupported == 0 {
		return
	}
	t := newTable(stdout)
	t.AppendHeader(table.Row{"URL", "来源", "状态", "错误"})
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed && it.Status != domain.StatusUnsupported {
			continue
		}
		src := ""
		if len(it.Sources) > 0 {
			src = it.Sources[0]
		}
		msg := it.ErrorMsg
		if it.ErrorCode != "" {
			msg = it.ErrorCode + ": " + msg
		}
		t.AppendRow(table.Row{truncate(it.URL, 60), src, it.Status, truncate(msg, 80)})
	}
	t.Render()
}
