//go:build !windows

package hosttool

import (
	"os"
	"path/filepath"
	"runtime"
)

func candidateDirs() []string {
	if runtime.GOOS == "darwin" {
		home, _ := os.UserHomeDir()
		dirs := []string{
			"/Applications/Blender.app/Contents/MacOS",
			"/Applications/Blender*.app/Contents/MacOS",
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Applications", "Blender*.app", "Contents", "MacOS"))
		}
		return dirs
	}
	return []string{
		"/usr/bin",
		"/usr/local/bin",
		"/snap/bin",
		"/var/lib/flatpak/exports/bin",
		"/opt/blender*",
		"/usr/local/blender*",
	}
}
