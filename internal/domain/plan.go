package domain

// RenamePlan 规划一次原地重命名（同目录）。
type RenamePlan struct {
	SrcAbs string
	DstAbs string
	// Noop 表示目标与源相同（文件已经是该名字）。
	Noop bool
}
