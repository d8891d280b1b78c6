package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveScript(t *testing.T) {
	exeDir := t.TempDir()
	tmp := t.TempDir()

	nested := filepath.Join(exeDir, "scripts", ScriptName)
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("import bpy\n"), 0o644))

	got, cleanup, err := ResolveScript("", exeDir, tmp)
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, nested, got)
	assert.FileExists(t, nested, "installed script must not be removed")

	// 与可执行文件同目录的脚本优先。
	flat := filepath.Join(exeDir, ScriptName)
	require.NoError(t, os.WriteFile(flat, []byte("import bpy\n"), 0o644))
	got, _, err = ResolveScript("", exeDir, tmp)
	require.NoError(t, err)
	assert.Equal(t, flat, got)

	got, _, err = ResolveScript(nested, "/nowhere", tmp)
	require.NoError(t, err)
	assert.Equal(t, nested, got)

	_, _, err = ResolveScript(filepath.Join(exeDir, "missing.py"), exeDir, tmp)
	assert.Error(t, err)
}

func TestResolveScript_FallsBackToEmbedded(t *testing.T) {
	tmp := t.TempDir()

	got, cleanup, err := ResolveScript("", t.TempDir(), tmp)
	require.NoError(t, err)
	assert.Equal(t, tmp, filepath.Dir(got))
	assert.Equal(t, ".py", filepath.Ext(got))

	b, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, EmbeddedScript(), b)

	cleanup()
	assert.NoFileExists(t, got)
}

func TestEmbeddedScript_ReadsHandoffArguments(t *testing.T) {
	src := string(EmbeddedScript())
	// 脚本侧必须按五个参数解析，且两份列表是 JSON 数组。
	for _, want := range []string{
		"settings_file, srcroot, dstdir, sources, destinations = args",
		"json.loads(sources)",
		"json.loads(destinations)",
		"bpy.ops.wm.open_mainfile",
	} {
		assert.True(t, strings.Contains(src, want), "script missing %q", want)
	}
	for _, key := range []string{"start_frame", "end_frame", "fps", "char_name", "anim_type", "coordinate_system"} {
		assert.Contains(t, src, "settings['"+key+"']")
	}
}
