package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/examren/internal/domain"
)

// ScanPDFs 列出 root 目录（不递归）下的 PDF 文件。
//
// 规则：
// - 只取普通文件，扩展名 .pdf（不区分大小写）
// - 忽略隐藏文件（以 '.' 开头，包括本工具自己的临时文件/状态目录）
// - 按文件名排序，保证不同平台上处理顺序一致
//
// 注意：扫描阶段只做 stat，不读文件内容。
func ScanPDFs(root string) ([]domain.PDFFile, error) {
	root = filepath.Clean(root)
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	files := make([]domain.PDFFile, 0, len(entries))
	for _, d := range entries {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !d.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}

		info, err := d.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, domain.PDFFile{
			AbsPath: filepath.Join(abs, name),
			RelPath: name,
			Name:    name,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
	}

	// os.ReadDir 已按文件名排序；这里显式再排一次，把顺序契约写在代码里。
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
