package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/afero"
	"github.com/titanous/json5"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件（及其 .local 覆盖文件）都不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultFile 是未指定 --config 时在 cwd 下查找的文件名。
	DefaultFile = "mdm.json"

	ServerLocal = "local"
	ServerProd  = "prod"

	DefaultServer      = ServerProd
	DefaultConcurrency = 4
)

// Defaults 是环境相关的常量：提交目标与会话 cookie 名。
var Defaults = struct {
	ProdBaseURL  string
	LocalBaseURL string
	// SessionCookieNames 依次为 https 与 http 下的会话 cookie 名。
	SessionCookieNames [2]string
	CoverTimeout       time.Duration
	ContainerTimeout   time.Duration
	IngestAddr         string
	IngestDBPath       string
}{
	ProdBaseURL:        "https://ealon-movie.vercel.app",
	LocalBaseURL:       "http://localhost:8120",
	SessionCookieNames: [2]string{"__Secure-authjs.session-token", "authjs.session-token"},
	CoverTimeout:       8 * time.Second,
	ContainerTimeout:   12 * time.Second,
	IngestAddr:         ":8120",
	IngestDBPath:       "mdm.db",
}

// CLIArgs 保留“是否显式指定”的信息，使 --server/--token 能覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	Server    string
	ServerSet bool

	Token    string
	TokenSet bool
}

// FileConfig 对应 mdm.json（JSON5）的解析结构。
type FileConfig struct {
	Server       string        `json:"server"`
	ProdBaseURL  string        `json:"prod_base_url"`
	LocalBaseURL string        `json:"local_base_url"`
	SessionToken string        `json:"session_token"`
	Proxy        *ProxyConfig  `json:"proxy"`
	Concurrency  int           `json:"concurrency"`
	CacheDir     string        `json:"cache_dir"`
	Log          LogConfig     `json:"log"`
	Ingest       IngestConfig  `json:"ingest"`
	Timeouts     TimeoutConfig `json:"timeouts"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

type IngestConfig struct {
	Addr            string   `json:"addr"`
	DBPath          string   `json:"db_path"`
	JWTSecret       string   `json:"jwt_secret"`
	AllowedSubjects []string `json:"allowed_subjects"`
}

type TimeoutConfig struct {
	CoverMS     int `json:"cover_ms"`
	ContainerMS int `json:"container_ms"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置。
type EffectiveConfig struct {
	// Source 是实际读取的配置文件路径；未找到文件时为空。
	Source string

	Server       string
	BaseURL      string
	ProdBaseURL  string
	LocalBaseURL string
	SessionToken string

	ProxyURL    string
	Concurrency int
	CacheDir    string

	Log    LogConfig
	Ingest IngestConfig

	CoverTimeout     time.Duration
	ContainerTimeout time.Duration
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件并与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：该文件或其 <name>.local.<ext> 至少存在一个，否则 config_not_found
// 2) 未提供：读取 <cwd>/mdm.json（可选，不存在时全部取默认值）
//
// <name>.local.<ext> 中的非零字段覆盖主文件。
//
// 覆盖优先级：
// - server：CLI --server > config > 默认 prod
// - session_token：CLI --token > config
// - 其他字段：仅由 config 控制
func LoadEffective(fsys afero.Fs, cwd string, cli CLIArgs) (EffectiveConfig, error) {
	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	cfgPath := filepath.Join(cwd, DefaultFile)
	if explicit {
		cfgPath = absCleanFrom(cwd, cli.ConfigPath)
	}

	fc, exists, err := readFileConfig(fsys, cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && explicit {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	eff, err := merge(cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	if exists {
		eff.Source = cfgPath
	}
	return eff, nil
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	server := DefaultServer
	if cli.ServerSet {
		server = strings.TrimSpace(cli.Server)
	} else if s := strings.TrimSpace(fc.Server); s != "" {
		server = s
	}
	if server != ServerLocal && server != ServerProd {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: errServer(server)}
	}

	token := strings.TrimSpace(fc.SessionToken)
	if cli.TokenSet {
		token = strings.TrimSpace(cli.Token)
	}

	prod := orDefault(fc.ProdBaseURL, Defaults.ProdBaseURL)
	local := orDefault(fc.LocalBaseURL, Defaults.LocalBaseURL)
	for name, v := range map[string]string{"prod_base_url": prod, "local_base_url": local} {
		if err := validateHTTPURL(v); err != nil {
			return EffectiveConfig{}, invalid("%s 无效：%v", name, err)
		}
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if err := validateHTTPURL(proxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%v", err)
		}
	}

	if fc.Timeouts.CoverMS < 0 || fc.Timeouts.ContainerMS < 0 {
		return EffectiveConfig{}, invalid("timeouts 不能为负数")
	}

	ingest := fc.Ingest
	ingest.Addr = orDefault(ingest.Addr, Defaults.IngestAddr)
	ingest.DBPath = orDefault(ingest.DBPath, Defaults.IngestDBPath)
	ingest.AllowedSubjects = append([]string(nil), ingest.AllowedSubjects...)

	eff := EffectiveConfig{
		Server:           server,
		ProdBaseURL:      prod,
		LocalBaseURL:     local,
		SessionToken:     token,
		ProxyURL:         proxyURL,
		Concurrency:      concurrency,
		CacheDir:         strings.TrimSpace(fc.CacheDir),
		Log:              fc.Log,
		Ingest:           ingest,
		CoverTimeout:     msOrDefault(fc.Timeouts.CoverMS, Defaults.CoverTimeout),
		ContainerTimeout: msOrDefault(fc.Timeouts.ContainerMS, Defaults.ContainerTimeout),
	}
	eff.BaseURL = eff.BaseURLFor(server)
	return eff, nil
}

// BaseURLFor 返回指定环境的提交根地址（不带末尾斜杠）。
func (c EffectiveConfig) BaseURLFor(server string) string {
	base := c.ProdBaseURL
	if server == ServerLocal {
		base = c.LocalBaseURL
	}
	return strings.TrimRight(base, "/")
}

// SessionCookieName 按 base URL 的 scheme 选择会话 cookie 名。
func SessionCookieName(baseURL string) string {
	if strings.HasPrefix(strings.ToLower(baseURL), "https://") {
		return Defaults.SessionCookieNames[0]
	}
	return Defaults.SessionCookieNames[1]
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("不支持的 scheme：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

func errServer(s string) error {
	return fmt.Errorf("server 只能是 local 或 prod，实际是 %q", s)
}

func isNotExist(err error) bool { return os.IsNotExist(err) }

func orDefault(v, d string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return d
}

func msOrDefault(ms int, d time.Duration) time.Duration {
	if ms <= 0 {
		return d
	}
	return time.Duration(ms) * time.Millisecond
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// LocalPath 返回 <name>.local.<ext>。
func LocalPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// readFileConfig 读取主文件与 .local 覆盖文件并合并。
// exists 表示两者至少存在一个。
func readFileConfig(fsys afero.Fs, path string) (fc FileConfig, exists bool, err error) {
	main, err := readOne(fsys, path)
	if err != nil {
		return FileConfig{}, false, err
	}
	local, err := readOne(fsys, LocalPath(path))
	if err != nil {
		return FileConfig{}, false, err
	}

	if main != nil {
		fc = *main
		exists = true
	}
	if local != nil {
		if err := mergo.Merge(&fc, *local, mergo.WithOverride); err != nil {
			return FileConfig{}, false, err
		}
		slog.Debug("合并本地覆盖配置", "local", LocalPath(path))
		exists = true
	}
	return fc, exists, nil
}

func readOne(fsys afero.Fs, path string) (*FileConfig, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var fc FileConfig
	if len(strings.TrimSpace(string(b))) == 0 {
		return &fc, nil
	}
	if err := json5.Unmarshal(b, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}
