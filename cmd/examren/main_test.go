package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/examren/internal/config"
	"github.com/John-Robertt/examren/internal/domain"
	"github.com/John-Robertt/examren/internal/infra/lock"
	"github.com/John-Robertt/examren/internal/ocr"
)

type fixedRecognizer map[string]string

func (f fixedRecognizer) Recognize(_ context.Context, pdfPath string) (string, error) {
	return f[filepath.Base(pdfPath)], nil
}

type cliEnv struct {
	cwd    string
	folder string
	stdout bytes.Buffer
	stderr bytes.Buffer
	app    *app
}

func newCLIEnv(t *testing.T, texts map[string]string) *cliEnv {
	t.Helper()
	env := &cliEnv{cwd: t.TempDir()}
	env.folder = filepath.Join(env.cwd, config.DefaultFolder)
	if err := os.MkdirAll(env.folder, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	for name := range texts {
		writeTestFile(t, filepath.Join(env.folder, name), "%PDF-1.4 "+name)
	}
	writeTestFile(t, filepath.Join(env.cwd, config.DefaultRoster), "101 Maria Lopez\n102 Juan Perez\n")
	writeTestFile(t, filepath.Join(env.cwd, config.DefaultKeyFile), "K\n")

	env.app = &app{
		stdout: &env.stdout,
		stderr: &env.stderr,
		getwd:  func() (string, error) { return env.cwd, nil },
		newRecognizer: func(config.EffectiveConfig, *slog.Logger) (ocr.Recognizer, error) {
			return fixedRecognizer(texts), nil
		},
		extract: func(src string) (string, func(), error) { return src, func() {}, nil },
	}
	return env
}

func (e *cliEnv) report(t *testing.T) domain.RunReport {
	t.Helper()
	var rr domain.RunReport
	if err := json.Unmarshal(e.stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, e.stdout.String())
	}
	return rr
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	env := newCLIEnv(t, map[string]string{"scan1.pdf": "Maria Lopez 101 Exam"})

	code := execute(context.Background(), env.app, []string{"run"})
	if code != 0 {
		t.Fatalf("期望退出码 0，实际=%d\nstderr=%s", code, env.stderr.String())
	}

	rr := env.report(t)
	if rr.Summary.Renamed != 1 || rr.DryRun {
		t.Fatalf("报告不符合预期：%+v", rr)
	}
	if _, err := os.Stat(filepath.Join(env.folder, "101_Maria Lopez.pdf")); err != nil {
		t.Fatalf("期望文件已改名：%v", err)
	}
	if strings.Contains(env.stdout.String(), "配置（生效）") || strings.Contains(env.stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", env.stdout.String())
	}
	if !strings.Contains(env.stderr.String(), "完成：renamed=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", env.stderr.String())
	}

	// apply：report.json 落盘且与 stdout 一致。
	b, err := os.ReadFile(reportPath(env.folder))
	if err != nil {
		t.Fatalf("读取 report.json 失败：%v", err)
	}
	var onDisk domain.RunReport
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("report.json 无法解析：%v", err)
	}
	if onDisk.RunID != rr.RunID {
		t.Fatalf("report.json 与 stdout 不一致：%q vs %q", onDisk.RunID, rr.RunID)
	}
}

func TestCLI_DryRunWritesNothing(t *testing.T) {
	env := newCLIEnv(t, map[string]string{"scan1.pdf": "Maria Lopez 101 Exam"})

	code := execute(context.Background(), env.app, []string{"run", "--dry-run"})
	if code != 0 {
		t.Fatalf("期望退出码 0，实际=%d\nstderr=%s", code, env.stderr.String())
	}
	rr := env.report(t)
	if !rr.DryRun || rr.Items[0].Status != domain.StatusPlanned {
		t.Fatalf("dry-run 报告不符合预期：%+v", rr)
	}
	for _, name := range []string{"scan1.pdf"} {
		if _, err := os.Stat(filepath.Join(env.folder, name)); err != nil {
			t.Fatalf("dry-run 不应改名：%v", err)
		}
	}
	for _, name := range []string{".examren", lock.FileName} {
		if _, err := os.Stat(filepath.Join(env.folder, name)); err == nil {
			t.Fatalf("dry-run 不应创建 %s", name)
		}
	}
}

func TestCLI_FolderArgument(t *testing.T) {
	env := newCLIEnv(t, map[string]string{})
	other := filepath.Join(env.cwd, "otra")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	code := execute(context.Background(), env.app, []string{"run", "otra", "--dry-run"})
	if code != 0 {
		t.Fatalf("期望退出码 0，实际=%d\nstderr=%s", code, env.stderr.String())
	}
	if rr := env.report(t); rr.Path != other {
		t.Fatalf("期望 path=%q，实际=%q", other, rr.Path)
	}
}

func TestCLI_MissingKeyExit1(t *testing.T) {
	env := newCLIEnv(t, map[string]string{})
	if err := os.Remove(filepath.Join(env.cwd, config.DefaultKeyFile)); err != nil {
		t.Fatalf("删除 key 文件失败：%v", err)
	}

	code := execute(context.Background(), env.app, []string{"run"})
	if code != 1 {
		t.Fatalf("期望退出码 1，实际=%d", code)
	}
	rr := env.report(t)
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigMissingKey {
		t.Fatalf("期望 %s，实际=%+v", domain.ErrCodeConfigMissingKey, rr.Items)
	}
}

func TestCLI_MissingFolderExit1(t *testing.T) {
	env := newCLIEnv(t, map[string]string{})

	code := execute(context.Background(), env.app, []string{"run", "nope"})
	if code != 1 {
		t.Fatalf("期望退出码 1，实际=%d", code)
	}
	if rr := env.report(t); rr.Items[0].ErrorCode != domain.ErrCodeScanFailed {
		t.Fatalf("期望 %s，实际=%+v", domain.ErrCodeScanFailed, rr.Items)
	}
}

func TestCLI_LockBusyExit1(t *testing.T) {
	env := newCLIEnv(t, map[string]string{"scan1.pdf": "Maria Lopez"})
	held, err := lock.Acquire(env.folder)
	if err != nil {
		t.Fatalf("获取锁失败：%v", err)
	}
	defer held.Release()

	code := execute(context.Background(), env.app, []string{"run"})
	if code != 1 {
		t.Fatalf("期望退出码 1，实际=%d", code)
	}
	if rr := env.report(t); rr.Items[0].ErrorCode != domain.ErrCodeLockBusy {
		t.Fatalf("期望 %s，实际=%+v", domain.ErrCodeLockBusy, rr.Items)
	}
	if _, err := os.Stat(filepath.Join(env.folder, "scan1.pdf")); err != nil {
		t.Fatalf("锁被占用时不应改名：%v", err)
	}
}

func TestCLI_UsageErrorsExit2(t *testing.T) {
	cases := [][]string{
		{"run", "--nope"},
		{"run", "a", "b"},
		{"run", "--engine", "x"},
		{"nope"},
	}
	for _, args := range cases {
		env := newCLIEnv(t, map[string]string{})
		if code := execute(context.Background(), env.app, args); code != 2 {
			t.Fatalf("args=%v 期望退出码 2，实际=%d", args, code)
		}
	}
}

func TestCLI_TTYRendersTable(t *testing.T) {
	env := newCLIEnv(t, map[string]string{"scan1.pdf": "Maria Lopez 101 Exam"})
	env.app.stdoutTTY = true

	code := execute(context.Background(), env.app, []string{"run", "--dry-run"})
	if code != 0 {
		t.Fatalf("期望退出码 0，实际=%d", code)
	}
	out := env.stdout.String()
	if !strings.Contains(out, "101_Maria Lopez.pdf") || !strings.Contains(out, "完成（dry-run）：renamed=1") {
		t.Fatalf("TTY 输出不符合预期：\n%s", out)
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
