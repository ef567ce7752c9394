package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/John-Robertt/examren/internal/infra/fsx"
)

// StateDir 是工具在目标目录下的私有状态目录（report、OCR 缓存）。
const StateDir = ".examren"

// Store 提供 <folder>/.examren/ocr/ 下的识别文本缓存。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - key 只由源 PDF 的内容决定，与文件名无关（重命名后仍能命中）
type Store struct {
	Root     string // <folder>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// KeyOf 计算文件内容的 xxhash64（16 位小写十六进制）。
func KeyOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// TextPath 返回 key 对应缓存文件的绝对路径。
func (s Store) TextPath(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, StateDir, "ocr", k+".txt"), nil
}

func (s Store) ReadText(key string) (string, bool, error) {
	path, err := s.TextPath(key)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

func (s Store) WriteText(key, text string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.TextPath(key)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), []byte(text))
}

var keyRE = regexp.MustCompile(`^[0-9a-f]{16}$`)

func cleanKey(k string) (string, error) {
	k = strings.ToLower(strings.TrimSpace(k))
	// 最小约束：避免路径穿越。
	if !keyRE.MatchString(k) {
		return "", fmt.Errorf("非法缓存 key：%q", k)
	}
	return k, nil
}
