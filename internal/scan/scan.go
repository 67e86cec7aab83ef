package scan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/MDM/internal/domain"
)

// ScanTargets 读取 URL 清单。path 可以是单个文件，也可以是目录（读取其中全部 .txt/.list 文件）。
//
// 清单格式：每行 `<url> [movie-id]`；空行与 # 开头的行忽略。
// movie-id 不合法的行进入 rejected，不影响其它行。
//
// 规则：
// - excludeDirs 均视为相对 path 的目录（绝对路径按绝对路径处理）
// - 目录内的文件按相对路径字典序读取，保证输出稳定
func ScanTargets(fsys afero.Fs, path string, excludeDirs []string) (targets []domain.Target, rejected []domain.Rejected, err error) {
	path = filepath.Clean(path)
	fi, err := fsys.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if !fi.IsDir() {
		return readList(fsys, path, filepath.Base(path))
	}

	excluded := buildExcluded(path, excludeDirs)
	var files []string
	err = afero.Walk(fsys, path, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if isExcluded(p, excluded) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !isListExt(strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(files)

	for _, f := range files {
		rel, err := filepath.Rel(path, f)
		if err != nil {
			return nil, nil, err
		}
		t, r, err := readList(fsys, f, rel)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, t...)
		rejected = append(rejected, r...)
	}
	return targets, rejected, nil
}

func readList(fsys afero.Fs, path, display string) ([]domain.Target, []domain.Rejected, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var (
		targets  []domain.Target
		rejected []domain.Rejected
	)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t := domain.Target{Source: fmt.Sprintf("%s:%d", display, line)}
		fields := strings.Fields(text)
		t.URL = fields[0]

		switch {
		case len(fields) > 2:
			rejected = append(rejected, domain.Rejected{Target: t, Kind: domain.RejectInvalidLine, Reason: "每行最多两列：<url> [movie-id]"})
			continue
		case len(fields) == 2:
			id, ok := domain.ParseMovieID(fields[1])
			if !ok {
				rejected = append(rejected, domain.Rejected{Target: t, Kind: domain.RejectInvalidLine, Reason: fmt.Sprintf("movie-id 格式不正确：%q", fields[1])})
				continue
			}
			t.MovieID = id
		}
		targets = append(targets, t)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("读取 %s 失败：%w", display, err)
	}
	return targets, rejected, nil
}

func isListExt(ext string) bool {
	switch ext {
	case ".txt", ".list":
		return true
	default:
		return false
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
