//go:build windows

package hosttool

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"
)

func candidateDirs() []string {
	var dirs []string
	if dir, ok := registryDir(); ok {
		dirs = append(dirs, dir)
	}
	for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
		if root := os.Getenv(env); root != "" {
			dirs = append(dirs, filepath.Join(root, "Blender Foundation", "Blender*"))
		}
	}
	return dirs
}

// registryDir 读取安装器注册的 .blend 打开命令，形如
// "C:\Program Files\Blender Foundation\Blender 4.1\blender-launcher.exe" "%1"。
func registryDir() (string, bool) {
	k, err := registry.OpenKey(registry.CLASSES_ROOT, `blendfile\shell\open\command`, registry.QUERY_VALUE)
	if err != nil {
		return "", false
	}
	defer k.Close()

	cmd, _, err := k.GetStringValue("")
	if err != nil {
		return "", false
	}
	exe := firstField(cmd)
	if exe == "" {
		return "", false
	}
	return filepath.Dir(exe), true
}

func firstField(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if strings.HasPrefix(cmd, `"`) {
		if end := strings.Index(cmd[1:], `"`); end >= 0 {
			return cmd[1 : end+1]
		}
		return ""
	}
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
