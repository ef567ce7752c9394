package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	logger.Info("file_renamed", "file", "a.pdf")
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("期望单行 JSON，实际=%q err=%v", buf.String(), err)
	}
	if rec["msg"] != "file_renamed" || rec["file"] != "a.pdf" {
		t.Fatalf("字段不符合预期：%v", rec)
	}
}

func TestNew_ConsoleDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	logger.Warn("file_failed", "file", "b.pdf")
	if !strings.Contains(buf.String(), "msg=file_failed") || !strings.Contains(buf.String(), "file=b.pdf") {
		t.Fatalf("console 输出不符合预期：%q", buf.String())
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("期望错误")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"nope":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v，期望 %v", in, got, want)
		}
	}
}
