package roster

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/John-Robertt/examren/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileAccessError 表示名单文件无法读取（不存在/无权限等）。
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("读取名单文件 %q 失败：%v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// Load 读取名单文件并解析为条目列表。
func Load(path string) ([]domain.RosterEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	return Parse(decode(b))
}

// Parse 按行解析名单：首个空白分隔 token 为标识，其余部分（trim 后）为姓名。
// 不足两个 token 的行（空行、只有标识的行）直接跳过。
func Parse(text string) ([]domain.RosterEntry, error) {
	out := make([]domain.RosterEntry, 0, 64)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if e, ok := parseLine(sc.Text()); ok {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLine(line string) (domain.RosterEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.RosterEntry{}, false
	}
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return domain.RosterEntry{}, false
	}
	id := line[:i]
	name := strings.TrimSpace(line[i:])
	if name == "" {
		return domain.RosterEntry{}, false
	}
	return domain.RosterEntry{ID: id, Name: name}, true
}

// decode 把文件内容转成 UTF-8：去掉 BOM；非法 UTF-8 按 Windows-1252 解码（表格软件导出的西语名单常见）。
func decode(b []byte) string {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
