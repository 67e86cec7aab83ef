package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/domain"
)

func TestSubmitMovie_JSONAndBearer(t *testing.T) {
	var gotAuth, gotCT, gotPath string
	var gotBody domain.ExtractedRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"Movie created successfully","movie":{"id":"m1"}}`))
	}))
	defer srv.Close()

	rec := domain.ExtractedRecord{Title: "Heat", URL: "https://yts.mx/movies/heat", Year: domain.IntPtr(1995)}
	reply, err := New(nil).SubmitMovie(context.Background(), srv.URL+"/", rec, "tok")
	require.NoError(t, err)

	require.Equal(t, "/api/movie", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Contains(t, gotCT, "application/json")
	require.Equal(t, "Heat", gotBody.Title)
	require.Equal(t, 1995, *gotBody.Year)
	require.Equal(t, "Movie created successfully", reply.Message)
	require.Equal(t, http.StatusCreated, reply.Status)
	require.JSONEq(t, `{"id":"m1"}`, string(reply.Movie))
}

func TestSubmitMovie_NoTokenNoHeader(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	_, err := New(nil).SubmitMovie(context.Background(), srv.URL, domain.ExtractedRecord{}, "")
	require.NoError(t, err)
	require.False(t, hasAuth)
}

func TestSubmitDouban_StatusErrorCarriesBodyAndNoRetry(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal(t, "/api/douban/cm1abc", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not authenticated"}`))
	}))
	defer srv.Close()

	_, err := New(nil).SubmitDouban(context.Background(), srv.URL, "cm1abc", domain.DoubanInfo{Title: "x"}, "bad")
	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)
	require.Contains(t, se.Body, "Not authenticated")
	require.Equal(t, 1, hits)
}

func TestSubmit_NetworkErrorWrapped(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = New(nil).SubmitMovie(context.Background(), "http://"+addr, domain.ExtractedRecord{}, "")
	require.Error(t, err)
	var se *HTTPStatusError
	require.False(t, errors.As(err, &se), "网络错误不应伪装成状态码错误")
}

func TestSubmitDouban_RequiresID(t *testing.T) {
	_, err := New(nil).SubmitDouban(context.Background(), "http://x", "", domain.DoubanInfo{}, "")
	require.Error(t, err)
}
