package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusRenamed   = "renamed"
	StatusPlanned   = "planned"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

const (
	ErrCodeRosterUnreadable   = "roster_unreadable"
	ErrCodeScanFailed         = "scan_failed"
	ErrCodeExtractFailed      = "extract_failed"
	ErrCodeOCRTransportFailed = "ocr_transport_failed"
	ErrCodeOCRServiceFailed   = "ocr_service_failed"
	ErrCodeTargetConflict     = "target_conflict"
	ErrCodeRenameFailed       = "rename_failed"
	ErrCodeRosterExhausted    = "roster_exhausted"
	ErrCodeOCREmpty           = "ocr_empty"
	ErrCodeBelowMinScore      = "below_min_score"
	ErrCodeLockBusy           = "lock_busy"
	ErrCodeIOFailed           = "io_failed"
	ErrCodeCanceled           = "canceled"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingKey   = "config_missing_key"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	Roster string `json:"roster"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary         ReportSummary `json:"summary"`
	RosterRemaining []RosterEntry `json:"roster_remaining"`
	Items           []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Renamed   int `json:"renamed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Unmatched int `json:"unmatched"`
}

type ItemResult struct {
	File   string `json:"file"`
	Target string `json:"target"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	MatchID   string  `json:"match_id"`
	MatchName string  `json:"match_name"`
	Score     float64 `json:"score"`
	Cached    bool    `json:"cached"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 file 字典序；file=="" 的合成条目排在最后
// 3) summary 由 items 计算得出（planned 计入 renamed）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].File
		b := r.Items[j].File
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusRenamed, StatusPlanned:
			s.Renamed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
	}
	r.Summary = s
	if r.RosterRemaining == nil {
		r.RosterRemaining = []RosterEntry{}
	}
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
