package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/blend2egg/internal/infra/fsx"
)

// ScriptName 是 Blender 侧导出脚本的文件名（脚本与其依赖的 yabee 目录一起安装）。
const ScriptName = "blender_script.py"

// embeddedScript 是随二进制发布的导出脚本；磁盘上找不到脚本时写到临时目录使用。
//
//go:embed scripts/blender_script.py
var embeddedScript []byte

// EmbeddedScript 返回内置导出脚本的内容。
func EmbeddedScript() []byte { return append([]byte(nil), embeddedScript...) }

// ResolveScript 决定本次 run 使用的导出脚本。
//
// 查找顺序：
// - explicit 非空时必须存在
// - <exeDir>/blender_script.py 与 <exeDir>/scripts/blender_script.py（可与 yabee 目录放在一起）
// - 内置脚本写入 tempDir（空表示系统临时目录）
//
// 返回的 cleanup 总是非 nil；只有内置脚本需要删除。
func ResolveScript(explicit, exeDir, tempDir string) (string, func(), error) {
	nop := func() {}
	if p := strings.TrimSpace(explicit); p != "" {
		if !isFile(p) {
			return "", nop, fmt.Errorf("blender script %q does not exist", p)
		}
		return p, nop, nil
	}
	for _, c := range []string{
		filepath.Join(exeDir, ScriptName),
		filepath.Join(exeDir, "scripts", ScriptName),
	} {
		if isFile(c) {
			return c, nop, nil
		}
	}

	p, err := fsx.WriteTempFile(tempDir, "blend2egg-script-*.py", embeddedScript)
	if err != nil {
		return "", nop, fmt.Errorf("write built-in %s: %w (use --script to point to one)", ScriptName, err)
	}
	return p, func() { _ = os.Remove(p) }, nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
