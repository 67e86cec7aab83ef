package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/MDM/internal/infra/fsx"
)

// Store 提供 <root>/<namespace>/ 下按 key 索引的 JSON 文件缓存。
//
// 约束：
// - ReadOnly=true 时只允许读
// - MaxAge>0 时，修改时间早于 now-MaxAge 的条目视为未命中
type Store struct {
	Root     string
	ReadOnly bool
	MaxAge   time.Duration

	now func() time.Time
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回条目的绝对路径；文件名是 key 的 sha1，避免 URL 中的特殊字符进入路径。
func (s Store) Path(namespace, key string) (string, error) {
	ns, err := cleanNamespace(namespace)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key 不能为空")
	}
	sum := sha1.Sum([]byte(key))
	return filepath.Join(s.Root, ns, hex.EncodeToString(sum[:])+".json"), nil
}

// ReadJSON 读取并解码条目；未命中（或过期）返回 ok=false。
func (s Store) ReadJSON(namespace, key string, v any) (bool, error) {
	path, err := s.Path(namespace, key)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if s.MaxAge > 0 && s.clock().Sub(fi.ModTime()) > s.MaxAge {
		return false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("缓存条目损坏 %s：%w", path, err)
	}
	return true, nil
}

func (s Store) WriteJSON(namespace, key string, v any) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.Path(namespace, key)
	if err != nil {
		return err
	}
	return fsx.WriteJSONAtomic(filepath.Dir(path), filepath.Base(path), v)
}

func (s Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

var namespaceRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanNamespace(ns string) (string, error) {
	ns = strings.ToLower(strings.TrimSpace(ns))
	if ns == "" {
		return "", fmt.Errorf("namespace 不能为空")
	}
	// 避免路径穿越；namespace 本身是枚举（douban 等）。
	if !namespaceRE.MatchString(ns) {
		return "", fmt.Errorf("非法 namespace：%q", ns)
	}
	return ns, nil
}
