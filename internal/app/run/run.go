package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/examren/internal/app/planner"
	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
	"github.com/John-Robertt/examren/internal/infra/cache"
	"github.com/John-Robertt/examren/internal/infra/fsx"
	"github.com/John-Robertt/examren/internal/logging"
	"github.com/John-Robertt/examren/internal/match"
	"github.com/John-Robertt/examren/internal/ocr"
	"github.com/John-Robertt/examren/internal/pdfpage"
	"github.com/John-Robertt/examren/internal/roster"
	"github.com/John-Robertt/examren/internal/scan"
)

// ExtractFunc 把源 PDF 的第 1 页写入临时文件，返回路径和清理函数。
type ExtractFunc func(src string) (path string, cleanup func(), err error)

// Deps 是 run 的外部依赖。Recognizer 必填，其余为空时使用默认实现。
type Deps struct {
	Recognizer ocr.Recognizer
	Extract    ExtractFunc
	Logger     *slog.Logger
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 单个文件的失败只记录到对应 item，不影响其他文件。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	if obs != nil {
		obs.OnStart(eff)
	}

	r := newRunner(eff, deps)
	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Path:      eff.Folder,
		Roster:    eff.Roster,
		DryRun:    eff.DryRun,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 64),
	}
	log := r.log.With("run_id", rr.RunID)
	r.log = log

	// 名单读取失败：记录后按空名单继续（所有文件都会是 unmatched）。
	rosterStarted := time.Now()
	entries, err := roster.Load(eff.Roster)
	if err != nil {
		log.Error("roster_unreadable", "path", eff.Roster, "error", err)
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeRosterUnreadable, err.Error()))
		entries = nil
	} else {
		log.Info("roster_loaded", "path", eff.Roster, "entries", len(entries))
	}
	r.roster = domain.NewRoster(entries)
	if obs != nil {
		obs.OnPhaseDone("roster", map[string]any{"entries": len(entries)}, time.Since(rosterStarted))
	}

	scanStarted := time.Now()
	files, err := scan.ScanPDFs(eff.Folder)
	if err != nil {
		log.Error("scan_failed", "path", eff.Folder, "error", err)
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeScanFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.RosterRemaining = r.roster.Remaining()
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	for i, f := range files {
		oneStarted := time.Now()
		var res domain.ItemResult
		if err := ctx.Err(); err != nil {
			res = domain.ItemResult{File: f.Name, Status: domain.StatusFailed, ErrorCode: domain.ErrCodeCanceled, ErrorMsg: err.Error()}
		} else {
			res = r.processOne(ctx, f)
		}
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, len(files), res, time.Since(oneStarted))
		}
	}

	rr.RosterRemaining = r.roster.Remaining()
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Info("run_complete",
		"renamed", rr.Summary.Renamed,
		"skipped", rr.Summary.Skipped,
		"failed", rr.Summary.Failed,
		"unmatched", rr.Summary.Unmatched,
		"roster_remaining", len(rr.RosterRemaining),
		"dry_run", eff.DryRun,
	)
	return rr
}

type runner struct {
	eff     config.EffectiveConfig
	rec     ocr.Recognizer
	extract ExtractFunc
	log     *slog.Logger

	store   cache.Store
	roster  *domain.Roster
	planner *planner.Planner
}

func newRunner(eff config.EffectiveConfig, deps Deps) *runner {
	r := &runner{
		eff:     eff,
		rec:     deps.Recognizer,
		extract: deps.Extract,
		log:     deps.Logger,
		store:   cache.New(eff.Folder, eff.DryRun),
		planner: planner.New(),
	}
	if r.extract == nil {
		r.extract = pdfpage.FirstPageTemp
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	return r
}

// processOne 处理单个文件；返回的 item 总是带 File 与 Status。
func (r *runner) processOne(ctx context.Context, f domain.PDFFile) domain.ItemResult {
	item := domain.ItemResult{File: f.Name}

	if r.roster.Len() == 0 {
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeRosterExhausted
		item.ErrorMsg = "名单中已没有可用条目"
		return item
	}

	text, cached, code, err := r.recognize(ctx, f)
	if err != nil {
		return r.fail(item, code, err)
	}
	item.Cached = cached

	if strings.TrimSpace(text) == "" {
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeOCREmpty
		item.ErrorMsg = "OCR 未识别出任何文字"
		r.log.Warn("file_unmatched", "file", f.Name, "reason", item.ErrorCode)
		return item
	}

	m, ok := match.Best(text, r.roster.Available())
	if !ok {
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeRosterExhausted
		item.ErrorMsg = "名单中已没有可用条目"
		return item
	}
	item.MatchID = m.Entry.ID
	item.MatchName = m.Entry.Name
	item.Score = m.Score

	if r.eff.MinScore > 0 && m.Score < r.eff.MinScore {
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeBelowMinScore
		item.ErrorMsg = fmt.Sprintf("最佳匹配 %s %s 的相似度 %.3f 低于 min_score %.3f", m.Entry.ID, m.Entry.Name, m.Score, r.eff.MinScore)
		r.log.Warn("file_unmatched", "file", f.Name, "reason", item.ErrorCode, "score", m.Score)
		return item
	}

	plan, err := r.planner.Plan(f, m.Entry)
	if err != nil {
		return r.fail(item, renameErrorCode(err), err)
	}
	item.Target = filepath.Base(plan.DstAbs)

	switch {
	case plan.Noop:
		item.Status = domain.StatusSkipped
	case r.eff.DryRun:
		item.Status = domain.StatusPlanned
	default:
		if err := fsx.RenameNoOverwrite(plan.SrcAbs, plan.DstAbs); err != nil {
			return r.fail(item, renameErrorCode(err), err)
		}
		item.Status = domain.StatusRenamed
	}

	// 只有在重命名成功（或无需重命名）之后才消费名单条目。
	if err := r.roster.Consume(m.Slot); err != nil {
		r.log.Error("roster_consume_failed", "file", f.Name, "error", err)
	}
	r.planner.Commit(plan)

	r.log.Info("file_renamed",
		"file", f.Name,
		"target", item.Target,
		"status", item.Status,
		"score", m.Score,
		"cached", cached,
	)
	return item
}

// recognize 返回识别文本；命中缓存时不会抽页也不会请求 OCR。
// 缓存的任何错误只记 warn，不影响该文件的处理。
func (r *runner) recognize(ctx context.Context, f domain.PDFFile) (text string, cached bool, code string, err error) {
	key := ""
	if r.eff.Cache {
		k, kerr := cache.KeyOf(f.AbsPath)
		if kerr != nil {
			r.log.Warn("cache_key_failed", "file", f.Name, "error", kerr)
		} else {
			key = k
			t, ok, rerr := r.store.ReadText(key)
			switch {
			case rerr != nil:
				r.log.Warn("cache_read_failed", "file", f.Name, "error", rerr)
			case ok:
				return t, true, "", nil
			}
		}
	}

	page, cleanup, err := r.extract(f.AbsPath)
	if err != nil {
		return "", false, domain.ErrCodeExtractFailed, err
	}
	defer cleanup()

	text, err = r.rec.Recognize(ctx, page)
	if err != nil {
		return "", false, ocrErrorCode(err), err
	}

	// 空文本不缓存：下次运行仍会重新识别。
	if key != "" && !r.eff.DryRun && strings.TrimSpace(text) != "" {
		if werr := r.store.WriteText(key, text); werr != nil {
			r.log.Warn("cache_write_failed", "file", f.Name, "error", werr)
		}
	}
	return text, false, "", nil
}

func (r *runner) fail(item domain.ItemResult, code string, err error) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = err.Error()
	r.log.Error("file_failed", "file", item.File, "error_code", code, "error", err)
	return item
}

func ocrErrorCode(err error) string {
	if ocr.IsService(err) {
		return domain.ErrCodeOCRServiceFailed
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrCodeCanceled
	}
	return domain.ErrCodeOCRTransportFailed
}

func renameErrorCode(err error) string {
	if fsx.IsTargetExists(err) || fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeRenameFailed
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
