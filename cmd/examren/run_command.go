package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/examren/internal/app/run"
	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
	"github.com/John-Robertt/examren/internal/infra/httpx"
	"github.com/John-Robertt/examren/internal/infra/lock"
	"github.com/John-Robertt/examren/internal/logging"
	"github.com/John-Robertt/examren/internal/ocr"
)

// app 汇总 CLI 的外部依赖，测试时替换输出流与识别器。
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	stdoutTTY bool
	stderrTTY bool

	getwd         func() (string, error)
	newRecognizer func(eff config.EffectiveConfig, logger *slog.Logger) (ocr.Recognizer, error)
	extract       run.ExtractFunc
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:        stdout,
		stderr:        stderr,
		stdoutTTY:     writerIsTTY(stdout),
		stderrTTY:     writerIsTTY(stderr),
		getwd:         os.Getwd,
		newRecognizer: newOCRRecognizer,
	}
}

type runFlags struct {
	configPath string
	roster     string
	keyFile    string
	dryRun     bool
	minScore   float64
	lang       string
	engine     int
	timeout    time.Duration
	noCache    bool
	logLevel   string
	logFormat  string
}

func newRunCommand(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [folder]",
		Short: "识别目录中每个 PDF 的首页并按名单重命名（默认直接改名，--dry-run 只规划）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				ConfigPath:  f.configPath,
				Roster:      f.roster,
				KeyFile:     f.keyFile,
				DryRun:      f.dryRun,
				DryRunSet:   cmd.Flags().Changed("dry-run"),
				MinScore:    f.minScore,
				MinScoreSet: cmd.Flags().Changed("min-score"),
				Language:    f.lang,
				Engine:      f.engine,
				Timeout:     f.timeout,
				NoCache:     f.noCache,
				LogLevel:    f.logLevel,
				LogFormat:   f.logFormat,
			}
			if len(args) == 1 {
				cli.Folder = args[0]
			}
			return a.run(cmd.Context(), cli)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "配置文件路径（默认读取当前目录下的 examren.toml，可不存在）")
	fl.StringVar(&f.roster, "roster", "", "名单文件（默认 Lista.txt）")
	fl.StringVar(&f.keyFile, "key-file", "", "OCR apikey 文件（默认 config.txt）")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只识别与规划，不改名、不写缓存和报告")
	fl.Float64Var(&f.minScore, "min-score", 0, "最低相似度（0 表示不设下限）")
	fl.StringVar(&f.lang, "lang", "", "OCR 语言（默认 spa）")
	fl.IntVar(&f.engine, "engine", 0, "OCR 引擎 1|2|3（默认 2）")
	fl.DurationVar(&f.timeout, "timeout", 0, "单次 OCR 请求超时（默认 60s）")
	fl.BoolVar(&f.noCache, "no-cache", false, "不读写 OCR 文本缓存")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "", "日志格式 console|json")

	return cmd
}

func (a *app) run(ctx context.Context, cli config.CLIArgs) error {
	cwd, err := a.getwd()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		a.emitReport(reportForError(cwd, cli.DryRunSet && cli.DryRun, config.Code(err), err))
		return &exitError{code: 1}
	}

	logger, err := logging.New(logging.Options{Level: eff.LogLevel, Format: eff.LogFormat, Writer: a.stderr})
	if err != nil {
		a.emitReport(reportForError(eff.Folder, eff.DryRun, domain.ErrCodeConfigInvalid, err))
		return &exitError{code: 1}
	}

	if fi, err := os.Stat(eff.Folder); err != nil || !fi.IsDir() {
		if err == nil {
			err = fmt.Errorf("%q 不是目录", eff.Folder)
		}
		logger.Error("folder_unreadable", "path", eff.Folder, "error", err)
		a.emitReport(reportForError(eff.Folder, eff.DryRun, domain.ErrCodeScanFailed, err))
		return &exitError{code: 1}
	}

	rec, err := a.newRecognizer(eff, logger)
	if err != nil {
		a.emitReport(reportForError(eff.Folder, eff.DryRun, domain.ErrCodeConfigInvalid, err))
		return &exitError{code: 1}
	}

	// apply 模式独占目录；dry-run 不落盘，不需要锁。
	if !eff.DryRun {
		lk, err := lock.Acquire(eff.Folder)
		if err != nil {
			code := domain.ErrCodeIOFailed
			var busy *lock.BusyError
			if errors.As(err, &busy) {
				code = domain.ErrCodeLockBusy
			}
			logger.Error("lock_failed", "path", eff.Folder, "error", err)
			a.emitReport(reportForError(eff.Folder, eff.DryRun, code, err))
			return &exitError{code: 1}
		}
		defer func() {
			if err := lk.Release(); err != nil {
				logger.Warn("lock_release_failed", "error", err)
			}
		}()
	}

	progressW, interactive := a.pickProgressWriter()
	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Close()
		obs = ui
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Deps{
		Recognizer: rec,
		Extract:    a.extract,
		Logger:     logger,
	}, obs)

	// apply：必须写入 <folder>/.examren/report.json；dry-run 禁止落盘。
	if !eff.DryRun {
		if err := writeReportFile(eff.Folder, rr); err != nil {
			logger.Error("report_write_failed", "error", err)
			a.emitReport(rr)
			return &exitError{code: 1}
		}
	}

	a.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return nil
}

func newOCRRecognizer(eff config.EffectiveConfig, logger *slog.Logger) (ocr.Recognizer, error) {
	hc, err := httpx.NewAPIClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, err
	}
	return ocr.NewClient(hc, ocr.Options{
		Endpoint:          eff.Endpoint,
		APIKey:            eff.APIKey,
		Language:          eff.Language,
		Engine:            eff.Engine,
		RequestsPerMinute: eff.RequestsPerMinute,
		BreakerFailures:   eff.BreakerFailures,
		Logger:            logger,
	})
}

func (a *app) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if a.stderrTTY {
		return a.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if a.stdoutTTY {
		return a.stdout, true
	}
	return nil, false
}
