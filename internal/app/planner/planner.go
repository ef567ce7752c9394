package planner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/examren/internal/domain"
	"github.com/John-Robertt/examren/internal/infra/fsx"
)

// fileNameReplacer 替换文件系统不安全字符：分隔符类变成 '-'，其余直接删除。
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// TargetName 生成 "{标识}_{姓名}.pdf"。姓名中的空格原样保留。
func TargetName(e domain.RosterEntry) string {
	id := sanitize(e.ID)
	name := sanitize(e.Name)
	return id + "_" + name + ".pdf"
}

func sanitize(s string) string {
	s = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(s)))
	// 避免生成 "." / ".." 之类的特殊名字或隐藏文件。
	return strings.TrimLeft(s, ".")
}

// Planner 为一次运行内的所有重命名分配目标名，并记录已分配的名字。
//
// 约束：同一次运行内不会把两个文件规划到同一个目标名（dry-run 下磁盘上看不到之前的规划，需要靠 used 判断）。
type Planner struct {
	used map[string]struct{}
}

func New() *Planner {
	return &Planner{used: make(map[string]struct{}, 64)}
}

// Plan 规划把 f 原地重命名为 entry 对应的名字（不做任何写入）。
//
// - 目标与源相同：Noop=true
// - 目标已存在于磁盘或已分配给本次运行的其它文件：返回 *fsx.TargetExistsError
func (p *Planner) Plan(f domain.PDFFile, e domain.RosterEntry) (domain.RenamePlan, error) {
	src := filepath.Clean(f.AbsPath)
	dst := filepath.Join(filepath.Dir(src), TargetName(e))

	if dst == src {
		p.used[dst] = struct{}{}
		return domain.RenamePlan{SrcAbs: src, DstAbs: dst, Noop: true}, nil
	}
	if _, ok := p.used[dst]; ok {
		return domain.RenamePlan{}, &fsx.TargetExistsError{Path: dst}
	}
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return domain.RenamePlan{}, &fsx.PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		return domain.RenamePlan{}, &fsx.TargetExistsError{Path: dst}
	} else if !os.IsNotExist(err) {
		return domain.RenamePlan{}, err
	}
	return domain.RenamePlan{SrcAbs: src, DstAbs: dst}, nil
}

// Commit 记录 plan 的目标名已被占用（计划执行或在 dry-run 中被接受之后调用）。
func (p *Planner) Commit(plan domain.RenamePlan) {
	p.used[plan.DstAbs] = struct{}{}
}
