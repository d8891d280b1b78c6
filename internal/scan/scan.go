package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceExt 是源文件（Blender 场景）的扩展名。
const SourceExt = ".blend"

// ScanSources 递归扫描 root，收集文件名以 ext 结尾的普通文件（绝对路径）。
//
// 规则：
// - 顺序即 filepath.WalkDir 的遍历顺序（目录内按文件名字典序），不再二次排序
// - 只做 DirEntry 判断，不读文件内容；指向普通文件的符号链接也收集（不跟随目录链接）
// - 扩展名比较区分大小写（与 Blender 的默认命名保持一致）
// - Blender 的备份文件（foo.blend1）因后缀不匹配自然被排除
func ScanSources(root, ext string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, 32)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		if !isRegularFile(path, d) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
