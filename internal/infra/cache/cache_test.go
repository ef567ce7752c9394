package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_RoundTripAndReadOnly(t *testing.T) {
	root := t.TempDir()
	pdf := filepath.Join(root, "scan1.pdf")
	if err := os.WriteFile(pdf, []byte("pdf-bytes"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	key, err := KeyOf(pdf)
	if err != nil {
		t.Fatalf("KeyOf 失败：%v", err)
	}

	ro := New(root, true)
	if _, ok, err := ro.ReadText(key); err != nil || ok {
		t.Fatalf("空缓存应 miss：ok=%v err=%v", ok, err)
	}
	if err := ro.WriteText(key, "x"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("只读模式写入应返回 ErrReadOnly，实际 %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, StateDir)); !os.IsNotExist(err) {
		t.Fatalf("只读模式不应创建状态目录，Stat err=%v", err)
	}

	rw := New(root, false)
	if err := rw.WriteText(key, "Maria Lopez 101"); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	got, ok, err := ro.ReadText(key)
	if err != nil || !ok || got != "Maria Lopez 101" {
		t.Fatalf("读取缓存不符合预期：%q ok=%v err=%v", got, ok, err)
	}
}

func TestKeyOf_DependsOnContentOnly(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	c := filepath.Join(dir, "c.pdf")
	_ = os.WriteFile(a, []byte("same"), 0o644)
	_ = os.WriteFile(b, []byte("same"), 0o644)
	_ = os.WriteFile(c, []byte("other"), 0o644)

	ka, _ := KeyOf(a)
	kb, _ := KeyOf(b)
	kc, _ := KeyOf(c)
	if ka != kb || ka == kc || len(ka) != 16 {
		t.Fatalf("key 不符合预期：a=%s b=%s c=%s", ka, kb, kc)
	}
}

func TestStore_RejectsBadKey(t *testing.T) {
	s := New(t.TempDir(), false)
	if _, err := s.TextPath("../../etc/passwd"); err == nil {
		t.Fatalf("非法 key 应失败")
	}
}
