//go:build unix

package fsx

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(t.TempDir(), "a.txt", []byte("x"))
	var ce *CrossDeviceError
	require.Truef(t, errors.As(err, &ce), "期望 CrossDeviceError，实际：%T %v", err, err)
}

func TestIsEXDEV(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"bare", syscall.EXDEV, true},
		{"link error", &os.LinkError{Op: "rename", Err: syscall.EXDEV}, true},
		{"wrapped", fmt.Errorf("rename: %w", &os.LinkError{Op: "rename", Err: syscall.EXDEV}), true},
		{"other errno", &os.LinkError{Op: "rename", Err: syscall.ENOENT}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, isEXDEV(tc.err))
		})
	}
}

func TestWriteFileAtomic_OtherRenameErrorPassesThrough(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(t.TempDir(), "a.txt", []byte("x"))
	var ce *CrossDeviceError
	require.False(t, errors.As(err, &ce))
	require.ErrorIs(t, err, syscall.EACCES)
}
