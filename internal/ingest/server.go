package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/John-Robertt/MDM/internal/domain"
)

const maxBodyBytes = 1 << 20

// DefaultOrigins 是允许跨域提交的页面来源。
var DefaultOrigins = []string{
	"https://movie.douban.com",
	"https://en.rarbg-official.com",
}

// Server 暴露入库 HTTP 接口。
type Server struct {
	Store   *Store
	Auth    Authenticator
	Origins []string
	Log     *slog.Logger
}

// Handler 构造路由：
//
//	POST    /api/movie              按 url 入库（201 新建 / 200 已存在）
//	GET     /api/movie/{id}         读取
//	POST    /api/douban/{movieId}   写入豆瓣信息（需要 bearer）
//	OPTIONS 以上路径                 204
func (s *Server) Handler() http.Handler {
	origins := s.Origins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials:   true,
		OptionsPassthrough: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		for _, p := range []string{"/movie", "/movie/{id}", "/douban/{movieId}"} {
			r.Options(p, noContent)
		}
		r.Post("/movie", s.postMovie)
		r.Get("/movie/{id}", s.getMovie)
		r.Post("/douban/{movieId}", s.postDouban)
	})
	return r
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type movieReply struct {
	Message string `json:"message"`
	Movie   *Movie `json:"movie,omitempty"`
}

func (s *Server) postMovie(w http.ResponseWriter, r *http.Request) {
	var rec domain.ExtractedRecord
	if err := decodeBody(w, r, &rec); err != nil {
		writeJSON(w, http.StatusBadRequest, movieReply{Message: "Invalid body"})
		return
	}
	rec.URL = strings.TrimSpace(rec.URL)
	if rec.URL == "" || strings.TrimSpace(rec.Title) == "" {
		writeJSON(w, http.StatusBadRequest, movieReply{Message: "title and url are required"})
		return
	}

	m, outcome, err := s.Store.UpsertMovie(r.Context(), rec)
	if err != nil {
		s.logger().ErrorContext(r.Context(), "入库失败", "url", rec.URL, "err", err)
		writeJSON(w, http.StatusInternalServerError, movieReply{Message: "Error"})
		return
	}
	switch outcome {
	case Created:
		writeJSON(w, http.StatusCreated, movieReply{Message: "Movie created successfully", Movie: &m})
	case LinksAdded:
		writeJSON(w, http.StatusOK, movieReply{Message: "Movie exists, new links added", Movie: &m})
	default:
		writeJSON(w, http.StatusOK, movieReply{Message: "Movie and all links already exist", Movie: &m})
	}
}

func (s *Server) getMovie(w http.ResponseWriter, r *http.Request) {
	m, err := s.Store.Movie(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrMovieNotFound) {
		writeJSON(w, http.StatusNotFound, movieReply{Message: "Movie not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, movieReply{Message: "Error"})
		return
	}
	writeJSON(w, http.StatusOK, movieReply{Message: "ok", Movie: &m})
}

// doubanBody 接受数字或字符串形式的 rating。
type doubanBody struct {
	Title         string          `json:"title"`
	DatePublished string          `json:"datePublished"`
	Rating        json.RawMessage `json:"rating"`
	Image         string          `json:"image"`
	URL           string          `json:"url"`
}

func (s *Server) postDouban(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Auth.Verify(r); err != nil {
		s.logger().InfoContext(r.Context(), "鉴权失败", "err", err)
		writeJSON(w, http.StatusUnauthorized, movieReply{Message: "Not authenticated"})
		return
	}
	id, ok := domain.ParseMovieID(chi.URLParam(r, "movieId"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, movieReply{Message: "Invalid movie id"})
		return
	}
	var body doubanBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, movieReply{Message: "Invalid body"})
		return
	}
	info := domain.DoubanInfo{
		Title:         body.Title,
		DatePublished: body.DatePublished,
		Rating:        lenientNumber(body.Rating),
		Image:         body.Image,
		URL:           body.URL,
	}

	err := s.Store.UpsertDouban(r.Context(), id, info)
	if errors.Is(err, ErrMovieNotFound) {
		writeJSON(w, http.StatusNotFound, movieReply{Message: "Movie not found"})
		return
	}
	if err != nil {
		s.logger().ErrorContext(r.Context(), "写入豆瓣信息失败", "movie_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, movieReply{Message: "Failed to upsert Douban info"})
		return
	}
	writeJSON(w, http.StatusOK, movieReply{Message: "Douban info upserted successfully"})
}

// lenientNumber：数字或数字字符串按值解析，其它一律为 0。
func lenientNumber(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger().InfoContext(r.Context(), "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
