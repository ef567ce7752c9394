// Package lock 防止同一目录上同时运行两个会改名的进程。
package lock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName 是目标目录下的锁文件名（隐藏文件，扫描时会被忽略）。
const FileName = ".examren.lock"

// BusyError 表示锁已被其它进程持有。
type BusyError struct {
	Path string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("目录正被另一个 examren 进程处理（锁文件 %q）", e.Path)
}

// Folder 是目录级的排他锁。
type Folder struct {
	fl *flock.Flock
}

// Acquire 以非阻塞方式获取 dir 的排他锁；已被占用时返回 *BusyError。
func Acquire(dir string) (*Folder, error) {
	path := filepath.Join(dir, FileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取目录锁失败：%w", err)
	}
	if !ok {
		return nil, &BusyError{Path: path}
	}
	return &Folder{fl: fl}, nil
}

// Release 释放锁。锁文件保留在原处（删除会与并发 Acquire 竞争）。
func (f *Folder) Release() error {
	if f == nil || f.fl == nil {
		return nil
	}
	return f.fl.Unlock()
}
