package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/infra/journal"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeBlend(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("BLENDER-v400"), 0o644); err != nil {
		t.Fatalf("写入 blend 失败：%v", err)
	}
	return path
}

func TestCLI_UsageErrors(t *testing.T) {
	if code, _, stderr := runCLI(t); code != 2 {
		t.Fatalf("期望退出码 2，实际 %d（stderr=%s）", code, stderr)
	}
	if code, _, _ := runCLI(t, "only-one.blend"); code != 2 {
		t.Fatalf("期望退出码 2，实际 %d", code)
	}
	if code, _, _ := runCLI(t, "--no-such-flag", "a.blend", "b.egg"); code != 2 {
		t.Fatalf("期望退出码 2，实际 %d", code)
	}
	if code, _, _ := runCLI(t, "--fps", "abc", "a.blend", "b.egg"); code != 2 {
		t.Fatalf("期望退出码 2，实际 %d", code)
	}
}

func TestCLI_HelpExitsZero(t *testing.T) {
	code, stdout, _ := runCLI(t, "--help")
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d", code)
	}
	if !bytes.Contains([]byte(stdout), []byte("--physics-engine")) {
		t.Fatalf("帮助信息缺少 --physics-engine：%s", stdout)
	}
}

func TestCLI_HostToolMissing(t *testing.T) {
	root := t.TempDir()
	src := writeBlend(t, filepath.Join(root, "m.blend"))

	code, _, stderr := runCLI(t, "--blender-dir", filepath.Join(root, "no-blender"), src, filepath.Join(root, "m.egg"))
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	if !bytes.Contains([]byte(stderr), []byte("Blender not found!")) {
		t.Fatalf("期望提示 Blender 未找到，实际 stderr=%s", stderr)
	}
}

func TestCLI_DryRunReportToStdout(t *testing.T) {
	root := t.TempDir()
	writeBlend(t, filepath.Join(root, "assets", "a.blend"))
	writeBlend(t, filepath.Join(root, "assets", "props", "b.blend"))
	out := filepath.Join(root, "build")

	code, stdout, stderr := runCLI(t, "--dry-run", "--report", "-", "--append-ext",
		`"`+filepath.Join(root, "assets")+`"`, out)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d（stderr=%s）", code, stderr)
	}

	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if rr.Status != domain.StatusPlanned || !rr.DryRun || !rr.IsBatch {
		t.Fatalf("报告不符合预期：%+v", rr)
	}
	want := []string{
		filepath.Join(out, "a.blend.egg"),
		filepath.Join(out, "props", "b.blend.egg"),
	}
	if len(rr.Files) != len(want) {
		t.Fatalf("期望 %d 个文件，实际 %+v", len(want), rr.Files)
	}
	for i, w := range want {
		if rr.Files[i].Dst != w {
			t.Fatalf("第 %d 个输出期望 %q，实际 %q", i, w, rr.Files[i].Dst)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建输出目录：%v", err)
	}
}

func TestCLI_DryRunJournalAndMetrics(t *testing.T) {
	root := t.TempDir()
	src := writeBlend(t, filepath.Join(root, "m.blend"))
	db := filepath.Join(root, "state", "journal.db")
	prom := filepath.Join(root, "metrics", "blend2egg.prom")
	report := filepath.Join(root, "reports", "run.json")

	code, _, stderr := runCLI(t, "--dry-run",
		"--journal", db, "--metrics-file", prom, "--report", report,
		src, filepath.Join(root, "out", "m.egg"))
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d（stderr=%s）", code, stderr)
	}

	gdb, err := gorm.Open(sqlite.Open(db), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开 journal 失败：%v", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	var runs []journal.Run
	if err := gdb.Preload("Files").Find(&runs).Error; err != nil {
		t.Fatalf("读取 journal 失败：%v", err)
	}
	if len(runs) != 1 || runs[0].Status != domain.StatusPlanned || len(runs[0].Files) != 1 {
		t.Fatalf("journal 内容不符合预期：%+v", runs)
	}

	b, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("读取 metrics 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`blend2egg_runs_total{pipeline="egg",status="planned"} 1`)) {
		t.Fatalf("metrics 缺少 runs_total：%s", b)
	}

	if _, err := os.Stat(report); err != nil {
		t.Fatalf("report 未写出：%v", err)
	}
}

func TestCLI_SourceNotFound(t *testing.T) {
	root := t.TempDir()

	code, _, stderr := runCLI(t, "--dry-run", filepath.Join(root, "missing.blend"), filepath.Join(root, "m.egg"))
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	if !bytes.Contains([]byte(stderr), []byte(domain.ErrCodeSourceNotFound)) {
		t.Fatalf("期望 %s，实际 stderr=%s", domain.ErrCodeSourceNotFound, stderr)
	}
	if bytes.Contains([]byte(stderr), []byte("Failed to convert all files")) {
		t.Fatalf("校验失败不应输出转换失败提示：%s", stderr)
	}
}

func TestCLI_InvalidSettingValue(t *testing.T) {
	root := t.TempDir()
	src := writeBlend(t, filepath.Join(root, "m.blend"))

	code, _, stderr := runCLI(t, "--dry-run", "--ac", "skeletal", src, filepath.Join(root, "m.egg"))
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	if !bytes.Contains([]byte(stderr), []byte(domain.ErrCodeSettingsInvalid)) {
		t.Fatalf("期望 %s，实际 stderr=%s", domain.ErrCodeSettingsInvalid, stderr)
	}
}

func TestStripQuotes(t *testing.T) {
	cases := map[string]string{
		`"C:\Program Files\Blender"`: `C:\Program Files\Blender`,
		`/plain/path`:                `/plain/path`,
		`""`:                         ``,
	}
	for in, want := range cases {
		if got := stripQuotes(in); got != want {
			t.Fatalf("stripQuotes(%q) 期望 %q，实际 %q", in, want, got)
		}
	}
}
