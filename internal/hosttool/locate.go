// Package hosttool 负责找到 Blender 可执行文件，并以“运行脚本”模式启动它。
package hosttool

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// executableNames 返回当前平台上 Blender 可执行文件可能的名字。
func executableNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"blender.exe"}
	case "darwin":
		return []string{"blender", "Blender"}
	default:
		return []string{"blender"}
	}
}

// Exists 判断 dir 下是否有可用的 Blender；dir 为空时在 PATH 中查找。
func Exists(dir string) bool {
	_, err := Executable(dir)
	return err == nil
}

// Executable 返回 dir（或 PATH）中 Blender 可执行文件的路径。
func Executable(dir string) (string, error) {
	names := executableNames()
	if dir == "" {
		var firstErr error
		for _, n := range names {
			p, err := exec.LookPath(n)
			if err == nil {
				return p, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return "", firstErr
	}

	for _, n := range names {
		p := filepath.Join(dir, n)
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", &exec.Error{Name: filepath.Join(dir, names[0]), Err: exec.ErrNotFound}
}

// Locate 在平台常见安装位置中尽力查找 Blender 所在目录。
// 多个版本并存时选择路径字典序最大者（通常是最新版本）。
func Locate() (string, bool) {
	return locateIn(candidateDirs())
}

func locateIn(patterns []string) (string, bool) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, dir := range matches {
			if Exists(dir) {
				return dir, true
			}
		}
	}
	return "", false
}

func isExecutable(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode().Perm()&0o111 != 0
}
