package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplace_SuccessAndNoTempLeft(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	if err := WriteFileAtomicReplace(dir, "a.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "a.json", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	assertNoTemp(t, dir, ".a.json.tmp-")
}

func TestWriteFileAtomicReplace_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomicReplace(dir, "a.json", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
	assertNoTemp(t, dir, ".a.json.tmp-")
	if _, err := os.Stat(filepath.Join(dir, "a.json")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件：%v", err)
	}
}

func TestWriteTempFile_ClosedAndReadableByPath(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteTempFile(dir, "settings-*.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "settings-") {
		t.Fatalf("临时文件位置不符合预期：%q", path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("按路径重新打开失败：%v", err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("内容不一致：%q", string(b))
	}
}

func TestWriteTempFile_MissingDir(t *testing.T) {
	if _, err := WriteTempFile(filepath.Join(t.TempDir(), "nope"), "x-*", []byte("x")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
}

func TestEnsureParentDirs(t *testing.T) {
	root := t.TempDir()
	files := []string{
		filepath.Join(root, "out", "a.egg"),
		filepath.Join(root, "out", "sub", "b.egg"),
		filepath.Join(root, "out", "c.egg"),
	}
	if err := EnsureParentDirs(files); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for _, f := range files {
		fi, err := os.Stat(filepath.Dir(f))
		if err != nil || !fi.IsDir() {
			t.Fatalf("目录未创建：%q (%v)", filepath.Dir(f), err)
		}
	}
}

func assertNoTemp(t *testing.T, dir, prefix string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}
