package domain

// PDFFile 描述一次扫描得到的 PDF（只做 stat，不读内容）。
//
// 不变量：AbsPath 必须是 clean + absolute。
type PDFFile struct {
	AbsPath string
	RelPath string
	Name    string // 含扩展名
	Size    int64
	ModUnix int64
}
