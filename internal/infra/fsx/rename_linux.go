//go:build linux

package fsx

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace 用 renameat2(RENAME_NOREPLACE) 做原子的“不覆盖”重命名。
// 文件系统不支持该 flag 时退化为普通 rename（调用方已做过 Lstat 检查）。
func renameNoReplace(src, dst string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS):
		return renameFunc(src, dst)
	case errors.Is(err, unix.EEXIST):
		return os.ErrExist
	default:
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: err}
	}
}
