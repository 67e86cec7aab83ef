// Package export 把抽取结果落盘为媒体库可读取的目录：record.json、movie.nfo 与 poster.jpg。
package export

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/MDM/internal/domain"
	"github.com/John-Robertt/MDM/internal/infra/fsx"
	"github.com/John-Robertt/MDM/internal/infra/imgx"
	"github.com/John-Robertt/MDM/internal/nfo"
)

const (
	RecordName = "record.json"
	NFOName    = "movie.nfo"

	maxCoverBytes = 16 << 20
)

// NotImageError 表示封面地址返回的不是图片。
type NotImageError struct {
	URL  string
	MIME string
}

func (e *NotImageError) Error() string {
	return fmt.Sprintf("封面不是图片：%s（%s）", e.URL, e.MIME)
}

// Result 描述一次导出。封面失败不影响 record/nfo 的写入，错误记在 PosterErr。
type Result struct {
	Dir       string
	Poster    bool
	PosterErr error
}

// Writer 在 Dir/<slug>/ 下写入导出文件；Client 为 nil 时跳过封面下载。
type Writer struct {
	Dir    string
	Client *http.Client
}

// Write 导出一条记录；douban 可为 nil。
func (w *Writer) Write(ctx context.Context, rec domain.ExtractedRecord, douban *domain.DoubanInfo) (Result, error) {
	if strings.TrimSpace(w.Dir) == "" {
		return Result{}, errors.New("导出目录为空")
	}
	dir := filepath.Join(w.Dir, Slug(rec.URL))
	res := Result{Dir: dir}

	doc := struct {
		domain.ExtractedRecord
		Douban *domain.DoubanInfo `json:"douban,omitempty"`
	}{rec, douban}
	if err := fsx.WriteJSONAtomic(dir, RecordName, doc); err != nil {
		return res, fmt.Errorf("写入 %s 失败：%w", RecordName, err)
	}

	if src := coverURL(rec, douban); src != "" && w.Client != nil {
		if err := w.poster(ctx, dir, src, rec.URL); err != nil {
			res.PosterErr = err
		} else {
			res.Poster = true
		}
	}

	b, err := nfo.Encode(rec, douban, res.Poster)
	if err != nil {
		return res, fmt.Errorf("生成 NFO 失败：%w", err)
	}
	if err := fsx.WriteFileAtomic(dir, NFOName, b); err != nil {
		return res, fmt.Errorf("写入 %s 失败：%w", NFOName, err)
	}
	return res, nil
}

func (w *Writer) poster(ctx context.Context, dir, src, referer string) error {
	b, err := download(ctx, w.Client, src, referer)
	if err != nil {
		return err
	}
	mt := mimetype.Detect(b)
	if !strings.HasPrefix(mt.String(), "image/") {
		return &NotImageError{URL: src, MIME: mt.String()}
	}
	out, err := imgx.PosterJPEG(b, imgx.MaxPosterWidth)
	if err != nil {
		return fmt.Errorf("转换封面失败：%w", err)
	}
	return fsx.WriteFileAtomic(dir, nfo.PosterName, out)
}

func coverURL(rec domain.ExtractedRecord, douban *domain.DoubanInfo) string {
	if rec.CoverImage != nil {
		if s := strings.TrimSpace(domain.Str(rec.CoverImage.Src)); s != "" {
			return s
		}
	}
	if douban != nil {
		return strings.TrimSpace(douban.Image)
	}
	return ""
}

func download(ctx context.Context, c *http.Client, u, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// 部分图床校验 Referer。
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("下载封面失败：%s 状态码 %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
}

var slugRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slug 由页面地址生成稳定的目录名：<站点>-<路径末段>-<sha1 前 8 位>。
func Slug(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	tail := hex.EncodeToString(sum[:4])

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return tail
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	site := host
	if i := strings.IndexByte(host, '.'); i > 0 {
		site = host[:i]
	}
	if site == "movie" || site == "en" {
		// movie.douban.com / en.rarbg-official.com
		rest := host[strings.IndexByte(host, '.')+1:]
		if j := strings.IndexByte(rest, '.'); j > 0 {
			site = rest[:j]
		}
	}

	seg := strings.Trim(u.Path, "/")
	if i := strings.LastIndexByte(seg, '/'); i >= 0 {
		seg = seg[i+1:]
	}
	parts := []string{}
	for _, s := range []string{site, seg} {
		s = strings.Trim(slugRE.ReplaceAllString(strings.ToLower(s), "-"), "-")
		if len(s) > 48 {
			s = strings.TrimRight(s[:48], "-")
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(append(parts, tail), "-")
}
