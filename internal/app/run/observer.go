package run

import (
	"time"

	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 文件按顺序处理，事件在调用 ExecuteWithObserver 的 goroutine 上依次发出。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用："roster"（entries/err）、"scan"（files）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个文件处理完成时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
