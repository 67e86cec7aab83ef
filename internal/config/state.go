package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/titanous/json5"
)

// SaveSession 把所选环境与会话 token 写入 <name>.local.<ext>，保留其中的其他字段。
// 提取与提交流程只读取这份状态，从不修改它。
func SaveSession(fsys afero.Fs, cwd, configPath, server, token string) (string, error) {
	path := filepath.Join(cwd, DefaultFile)
	if strings.TrimSpace(configPath) != "" {
		path = absCleanFrom(cwd, configPath)
	}
	local := LocalPath(path)

	doc := map[string]any{}
	b, err := afero.ReadFile(fsys, local)
	switch {
	case err == nil && len(strings.TrimSpace(string(b))) > 0:
		if err := json5.Unmarshal(b, &doc); err != nil {
			return local, &Error{Code: ErrCodeInvalid, Path: local, Err: err}
		}
	case err != nil && !isNotExist(err):
		return local, &Error{Code: ErrCodeInvalid, Path: local, Err: err}
	}

	if server != "" {
		if server != ServerLocal && server != ServerProd {
			return local, &Error{Code: ErrCodeInvalid, Path: local, Err: errServer(server)}
		}
		doc["server"] = server
	}
	doc["session_token"] = strings.TrimSpace(token)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return local, err
	}
	if err := fsys.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return local, err
	}
	return local, afero.WriteFile(fsys, local, append(out, '\n'), 0o600)
}
