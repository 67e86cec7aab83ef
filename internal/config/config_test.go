package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const cwd = "/work"

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(cwd, name), []byte(body), 0o644))
	}
	return fs
}

func TestLoadEffective_NoFileUsesDefaults(t *testing.T) {
	eff, err := LoadEffective(memFS(t, nil), cwd, CLIArgs{})
	require.NoError(t, err)

	require.Equal(t, "", eff.Source)
	require.Equal(t, ServerProd, eff.Server)
	require.Equal(t, Defaults.ProdBaseURL, eff.BaseURL)
	require.Equal(t, DefaultConcurrency, eff.Concurrency)
	require.Equal(t, 8*time.Second, eff.CoverTimeout)
	require.Equal(t, 12*time.Second, eff.ContainerTimeout)
	require.Equal(t, ":8120", eff.Ingest.Addr)
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	_, err := LoadEffective(memFS(t, nil), cwd, CLIArgs{ConfigPath: "other.json"})
	require.Equal(t, ErrCodeNotFound, Code(err), "err=%v", err)
}

func TestLoadEffective_JSON5AndLocalOverride(t *testing.T) {
	fs := memFS(t, map[string]string{
		"mdm.json": `{
			// 注释与尾逗号都允许
			server: "local",
			session_token: "from-main",
			concurrency: 64,
			timeouts: { cover_ms: 1500 },
		}`,
		"mdm.local.json": `{"session_token": "from-local"}`,
	})

	eff, err := LoadEffective(fs, cwd, CLIArgs{})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(cwd, "mdm.json"), eff.Source)
	require.Equal(t, ServerLocal, eff.Server)
	require.Equal(t, "http://localhost:8120", eff.BaseURL)
	require.Equal(t, "from-local", eff.SessionToken)
	require.Equal(t, 32, eff.Concurrency)
	require.Equal(t, 1500*time.Millisecond, eff.CoverTimeout)
}

func TestLoadEffective_CLIOverridesServerAndToken(t *testing.T) {
	fs := memFS(t, map[string]string{"mdm.json": `{"server":"local","session_token":"a"}`})

	eff, err := LoadEffective(fs, cwd, CLIArgs{Server: "prod", ServerSet: true, Token: "", TokenSet: true})
	require.NoError(t, err)
	require.Equal(t, ServerProd, eff.Server)
	require.Equal(t, "", eff.SessionToken, "显式 --token= 应清空配置中的 token")
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad server": `{"server":"staging"}`,
		"bad json":   `{`,
		"bad proxy":  `{"proxy":{"url":"ftp://x"}}`,
		"bad base":   `{"prod_base_url":"not a url"}`,
		"neg":        `{"timeouts":{"cover_ms":-1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadEffective(memFS(t, map[string]string{"mdm.json": body}), cwd, CLIArgs{})
			require.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
		})
	}
}

func TestSessionCookieName(t *testing.T) {
	require.Equal(t, "__Secure-authjs.session-token", SessionCookieName("https://ealon-movie.vercel.app"))
	require.Equal(t, "authjs.session-token", SessionCookieName("http://localhost:8120"))
}

func TestSaveSession_KeepsOtherLocalFields(t *testing.T) {
	fs := memFS(t, map[string]string{"mdm.local.json": `{"concurrency": 2}`})

	path, err := SaveSession(fs, cwd, "", ServerLocal, " tok ")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cwd, "mdm.local.json"), path)

	eff, err := LoadEffective(fs, cwd, CLIArgs{})
	require.NoError(t, err)
	require.Equal(t, ServerLocal, eff.Server)
	require.Equal(t, "tok", eff.SessionToken)
	require.Equal(t, 2, eff.Concurrency)

	_, err = SaveSession(fs, cwd, "", "staging", "x")
	require.Equal(t, ErrCodeInvalid, Code(err))
}
