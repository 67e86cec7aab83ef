package fsx

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteFileAtomic(dir, "a.txt", []byte("hello")))
	require.NoError(t, WriteFileAtomic(dir, "a.txt", []byte("world")))

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "world", string(b), "第二次写入应覆盖")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.Falsef(t, strings.HasPrefix(e.Name(), ".a.txt.tmp-"), "临时文件未清理：%q", e.Name())
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(dir, "a.txt", []byte("hello"))
	require.ErrorIs(t, err, os.ErrPermission)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "失败时既不应留下临时文件，也不应写出最终文件")
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteJSONAtomic(filepath.Join(dir, "nested"), "v.json", map[string]int{"a": 1}))

	b, err := os.ReadFile(filepath.Join(dir, "nested", "v.json"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(b), "\n"))

	var got map[string]int
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, 1, got["a"])
}

func TestCrossDeviceError_Unwrap(t *testing.T) {
	inner := errors.New("exdev")
	err := error(&CrossDeviceError{Src: "/a", Dst: "/b", Err: inner})
	require.ErrorIs(t, err, inner)
}
