package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
	"github.com/John-Robertt/examren/internal/infra/cache"
	"github.com/John-Robertt/examren/internal/infra/fsx"
)

const reportFileName = "report.json"

func (a *app) emitReport(rr domain.RunReport) {
	if a.stdoutTTY {
		if len(rr.Items) > 0 {
			fmt.Fprintln(a.stdout, renderReportTable(rr))
		}
		fmt.Fprintln(a.stdout, summaryLine(rr))
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(a.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(a.stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	mode := ""
	if rr.DryRun {
		mode = "（dry-run）"
	}
	return fmt.Sprintf("完成%s：renamed=%d skipped=%d failed=%d unmatched=%d roster_remaining=%d",
		mode, rr.Summary.Renamed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unmatched, len(rr.RosterRemaining),
	)
}

func renderReportTable(rr domain.RunReport) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"文件", "状态", "目标", "匹配", "相似度", "错误"})
	for _, it := range rr.Items {
		file := it.File
		if file == "" {
			file = "-"
		}
		matched := ""
		score := ""
		if it.MatchID != "" {
			matched = it.MatchID + " " + it.MatchName
			score = fmt.Sprintf("%.3f", it.Score)
		}
		errText := it.ErrorCode
		if it.ErrorMsg != "" {
			errText += ": " + truncate(it.ErrorMsg, 60)
		}
		if it.Cached {
			score += " (cache)"
		}
		tw.AppendRow(table.Row{file, it.Status, it.Target, matched, score, errText})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func reportForError(path string, dryRun bool, code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Path:       path,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func reportPath(folder string) string {
	return filepath.Join(folder, cache.StateDir, reportFileName)
}

func writeReportFile(folder string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(folder, cache.StateDir), reportFileName, b)
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", reportPath(eff.Folder))
	}
	if eff.Cache {
		fmt.Fprintf(w, "cache: %s\n", filepath.Join(eff.Folder, cache.StateDir, "ocr"))
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
