package main

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/John-Robertt/examren/internal/app/run"
	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个 OCR 请求可能很慢，长时间无条目完成时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	other int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "apply"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不改名/不写缓存/不写报告)"
	}

	fmt.Fprintf(p.w, "[%s] examren run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  folder: %s\n", eff.Folder)
	fmt.Fprintf(p.w, "  roster: %s\n", eff.Roster)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  ocr: %s (language=%s engine=%d timeout=%s)\n", formatEndpoint(eff.Endpoint), eff.Language, eff.Engine, eff.Timeout)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  cache: %s\n", onOff(eff.Cache))
	if eff.MinScore > 0 {
		fmt.Fprintf(p.w, "  min_score: %.3f\n", eff.MinScore)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "roster":
		fmt.Fprintf(p.w, "名单: entries=%d (%s)\n", intField(fields, "entries"), formatShortDuration(dur))
	case "scan":
		p.total = intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n\n", p.total, formatShortDuration(dur))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusRenamed, domain.StatusPlanned:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	default:
		p.other++
	}

	fmt.Fprintf(p.w, "[%d/%d] %s\n", idx, total, formatItemLine(res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Close 停止 keepalive（重复调用安全）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func formatItemLine(res domain.ItemResult, dur time.Duration) string {
	cached := ""
	if res.Cached {
		cached = " cache"
	}
	switch res.Status {
	case domain.StatusRenamed:
		return fmt.Sprintf("%s OK -> %s score=%.3f%s (%s)", res.File, res.Target, res.Score, cached, formatShortDuration(dur))
	case domain.StatusPlanned:
		return fmt.Sprintf("%s PLAN -> %s score=%.3f%s (%s)", res.File, res.Target, res.Score, cached, formatShortDuration(dur))
	case domain.StatusSkipped:
		return fmt.Sprintf("%s SKIP (已是目标名)%s (%s)", res.File, cached, formatShortDuration(dur))
	case domain.StatusUnmatched:
		return fmt.Sprintf("%s NOMATCH %s: %s (%s)", res.File, res.ErrorCode, truncate(res.ErrorMsg, 120), formatShortDuration(dur))
	default:
		return fmt.Sprintf("%s FAIL %s: %s (%s)", res.File, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d other=%d elapsed=%s（等待 OCR 响应）\n",
						p.done, p.total, p.ok, p.fail, p.other, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncate(raw, 120)
	}
	return u.Scheme + "://" + u.Host
}

func formatProxy(raw string) string {
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
