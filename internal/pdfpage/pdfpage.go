// Package pdfpage 从扫描 PDF 中取出首页，生成只含一页的新 PDF。
package pdfpage

import (
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoPages 表示源 PDF 没有任何页面。
var ErrNoPages = errors.New("PDF 没有页面")

// FileAccessError 表示源/目标文件无法打开或创建。
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("无法访问 %q：%v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

func init() {
	// pdfcpu 默认会在用户配置目录下生成配置文件；本工具不需要。
	api.DisableConfigDir()
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	// 扫描仪输出的 PDF 常有轻微不规范，严格校验会误杀。
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ExtractFirstPage 把 src 的第 1 页写入 dst（覆盖已有文件）。
func ExtractFirstPage(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &FileAccessError{Path: src, Err: err}
	}
	defer in.Close()

	conf := newConf()
	n, err := api.PageCount(in, conf)
	if err != nil {
		return fmt.Errorf("读取 PDF %q 失败：%w", src, err)
	}
	if n < 1 {
		return fmt.Errorf("%q：%w", src, ErrNoPages)
	}
	if _, err := in.Seek(0, 0); err != nil {
		return &FileAccessError{Path: src, Err: err}
	}

	out, err := os.Create(dst)
	if err != nil {
		return &FileAccessError{Path: dst, Err: err}
	}
	if err := api.Trim(in, out, []string{"1"}, conf); err != nil {
		_ = out.Close()
		return fmt.Errorf("提取 %q 首页失败：%w", src, err)
	}
	if err := out.Close(); err != nil {
		return &FileAccessError{Path: dst, Err: err}
	}
	return nil
}

// FirstPageTemp 在系统临时目录创建唯一文件并写入 src 的首页。
//
// 返回的 cleanup 删除该临时文件；无论成功失败都可以（且应该）调用，重复调用无副作用。
func FirstPageTemp(src string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "examren-first-page-*.pdf")
	if err != nil {
		return "", func() {}, &FileAccessError{Path: os.TempDir(), Err: err}
	}
	path = f.Name()
	_ = f.Close()
	cleanup = func() { _ = os.Remove(path) }

	if err := ExtractFirstPage(src, path); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return path, cleanup, nil
}
