package urlkey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  https://EN.RARBG-official.com/movies/inception/  ", "https://en.rarbg-official.com/movies/inception"},
		{"https://en.rarbg-official.com:443/movies/inception#top", "https://en.rarbg-official.com/movies/inception"},
		{"https://movie.douban.com/subject/1292052/?from=showing", "https://movie.douban.com/subject/1292052/"},
		{"http://movie.douban.com/subject/1292052", "https://movie.douban.com/subject/1292052/"},
		{"https://yts.mx/movies/inception-2010?lang=en", "https://yts.mx/movies/inception-2010?lang=en"},
		{"http://localhost:8120/", "http://localhost:8120/"},
	}
	for _, tc := range cases {
		got, err := Canonical(tc.in)
		require.NoErrorf(t, err, "输入 %q", tc.in)
		require.Equalf(t, tc.want, got, "输入 %q", tc.in)
	}
}

func TestCanonical_Invalid(t *testing.T) {
	cases := []struct{ in, kind string }{
		{"", "empty"},
		{"   ", "empty"},
		{"ftp://x/y", "scheme"},
		{"magnet:?xt=urn:btih", "scheme"},
		{"https://", "parse"},
		{"http://[::1", "parse"},
	}
	for _, tc := range cases {
		in, kind := tc.in, tc.kind
		_, err := Canonical(in)
		var ie *InvalidError
		require.Truef(t, errors.As(err, &ie), "输入 %q 应返回 *InvalidError，实际 %v", in, err)
		require.Equalf(t, kind, ie.Kind, "输入 %q", in)
	}
}
