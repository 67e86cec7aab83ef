// Package ingest 是入库服务：接收页面抽取结果并落到 SQLite。
package ingest

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/John-Robertt/MDM/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrMovieNotFound 表示按 id 找不到电影。
var ErrMovieNotFound = errors.New("movie not found")

// Movie 是入库后的电影记录。
type Movie struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Year       *int      `json:"year"`
	CoverImage *string   `json:"coverImage"`
	CoverTitle *string   `json:"coverTitle"`
	CoverAlt   *string   `json:"coverAlt"`
	Links      []Link    `json:"links"`
	Douban     *Douban   `json:"doubanInfo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Link struct {
	ID       int64   `json:"id"`
	Quality  string  `json:"quality"`
	Size     string  `json:"size"`
	Source   string  `json:"source"`
	Magnet   *string `json:"magnet"`
	Download *string `json:"download"`
}

type Douban struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	DatePublished string  `json:"datePublished"`
	Rating        float64 `json:"rating"`
	CoverImage    string  `json:"coverImage"`
}

// UpsertOutcome 描述一次电影入库的结果。
type UpsertOutcome int

const (
	// Created：按 url 没找到，新建了电影。
	Created UpsertOutcome = iota
	// LinksAdded：电影已存在，追加了新链接。
	LinksAdded
	// Unchanged：电影与全部链接都已存在。
	Unchanged
)

// Store 是 SQLite 上的电影库。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）数据库并执行迁移。
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite 单写者：一个连接即可，同时让 :memory: 库在整个生命周期内保持同一份。
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open db: %w", err)
		}
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Migrate 把内嵌的 goose 迁移应用到 db。
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertMovie 按 url 入库：不存在则新建；存在则只追加五个字段都不同的新链接。
func (s *Store) UpsertMovie(ctx context.Context, rec domain.ExtractedRecord) (Movie, UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Movie{}, 0, err
	}
	defer tx.Rollback()

	now := s.now().UTC()
	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM movies WHERE url = ?`, rec.URL).Scan(&id)
	outcome := Created
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		var src, title, alt *string
		if rec.CoverImage != nil {
			src, title, alt = rec.CoverImage.Src, rec.CoverImage.Title, rec.CoverImage.Alt
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO movies (id, title, url, year, cover_image, cover_title, cover_alt, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, rec.Title, rec.URL, rec.Year, src, title, alt, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return Movie{}, 0, fmt.Errorf("insert movie: %w", err)
		}
	case err != nil:
		return Movie{}, 0, err
	default:
		outcome = Unchanged
	}

	existing, err := queryLinks(ctx, tx, id)
	if err != nil {
		return Movie{}, 0, err
	}
	added := 0
	for _, l := range rec.Links {
		if containsLink(existing, l) {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO links (movie_id, quality, size, source, magnet, download) VALUES (?, ?, ?, ?, ?, ?)`,
			id, l.Quality, l.Size, l.Source, l.Magnet, l.Download)
		if err != nil {
			return Movie{}, 0, fmt.Errorf("insert link: %w", err)
		}
		lid, _ := res.LastInsertId()
		existing = append(existing, Link{ID: lid, Quality: l.Quality, Size: l.Size, Source: l.Source, Magnet: l.Magnet, Download: l.Download})
		added++
	}
	if outcome == Unchanged && added > 0 {
		outcome = LinksAdded
		if _, err := tx.ExecContext(ctx, `UPDATE movies SET updated_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id); err != nil {
			return Movie{}, 0, err
		}
	}

	m, err := getMovie(ctx, tx, id)
	if err != nil {
		return Movie{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return Movie{}, 0, err
	}
	return m, outcome, nil
}

// UpsertDouban 写入电影的豆瓣信息；能从 DatePublished 取到年份且与现有年份不同时一并更新年份。
func (s *Store) UpsertDouban(ctx context.Context, id domain.MovieID, info domain.DoubanInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var year sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT year FROM movies WHERE id = ?`, string(id)).Scan(&year)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w：%s", ErrMovieNotFound, id)
	}
	if err != nil {
		return err
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	if y := info.Year(); y > 0 && (!year.Valid || year.Int64 != int64(y)) {
		if _, err := tx.ExecContext(ctx, `UPDATE movies SET year = ?, updated_at = ? WHERE id = ?`, y, now, string(id)); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO douban_info (movie_id, url, title, date_published, rating, cover_image, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(movie_id) DO UPDATE SET
		   url = excluded.url, title = excluded.title, date_published = excluded.date_published,
		   rating = excluded.rating, cover_image = excluded.cover_image, updated_at = excluded.updated_at`,
		string(id), info.URL, info.Title, info.DatePublished, info.Rating, info.Image, now)
	if err != nil {
		return fmt.Errorf("upsert douban: %w", err)
	}
	return tx.Commit()
}

// Movie 按 id 读取电影（含链接与豆瓣信息）。
func (s *Store) Movie(ctx context.Context, id string) (Movie, error) {
	return getMovie(ctx, s.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMovie(ctx context.Context, q querier, id string) (Movie, error) {
	var (
		m                Movie
		year             sql.NullInt64
		src, title, alt  sql.NullString
		created, updated string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, title, url, year, cover_image, cover_title, cover_alt, created_at, updated_at FROM movies WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.URL, &year, &src, &title, &alt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Movie{}, fmt.Errorf("%w：%s", ErrMovieNotFound, id)
	}
	if err != nil {
		return Movie{}, err
	}
	if year.Valid {
		m.Year = domain.IntPtr(int(year.Int64))
	}
	m.CoverImage, m.CoverTitle, m.CoverAlt = nullStr(src), nullStr(title), nullStr(alt)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	if m.Links, err = queryLinks(ctx, q, id); err != nil {
		return Movie{}, err
	}

	var d Douban
	err = q.QueryRowContext(ctx,
		`SELECT url, title, date_published, rating, cover_image FROM douban_info WHERE movie_id = ?`, id).
		Scan(&d.URL, &d.Title, &d.DatePublished, &d.Rating, &d.CoverImage)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Movie{}, err
	default:
		m.Douban = &d
	}
	return m, nil
}

func queryLinks(ctx context.Context, q querier, movieID string) ([]Link, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, quality, size, source, magnet, download FROM links WHERE movie_id = ? ORDER BY id`, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		var (
			l                Link
			magnet, download sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Quality, &l.Size, &l.Source, &magnet, &download); err != nil {
			return nil, err
		}
		l.Magnet, l.Download = nullStr(magnet), nullStr(download)
		links = append(links, l)
	}
	return links, rows.Err()
}

func containsLink(links []Link, l domain.LinkInfo) bool {
	for _, e := range links {
		if e.Quality == l.Quality && e.Size == l.Size && e.Source == l.Source &&
			domain.Str(e.Magnet) == domain.Str(l.Magnet) && domain.Str(e.Download) == domain.Str(l.Download) {
			return true
		}
	}
	return false
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
