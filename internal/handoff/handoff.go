// Package handoff 实现跨进程的参数交接：把 Settings 写入临时文件，
// 启动宿主工具执行固定脚本，并且无论结果如何都删除该临时文件。
//
// 脚本收到的参数（sys.argv 中 "--" 之后）固定为五项：
//
//	<settings_file> <srcroot> <dstdir> <sources> <destinations>
//
// sources/destinations 各是一个 JSON 字符串数组（按下标一一对应）。
package handoff

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/infra/fsx"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

const settingsFilePattern = "blend2egg-settings-*.json"

// ScriptRunner 是宿主工具“运行脚本”的能力（由 hosttool.Runner 实现）。
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, args []string) error
}

// Batch 描述一次子进程调用要处理的文件。Sources 与 Outputs 按下标对应。
type Batch struct {
	SrcRoot string
	DstDir  string
	Sources []string
	Outputs []string
}

// Protocol 持有一次 run 内不变的部分：脚本、runner 与临时目录。
type Protocol struct {
	Runner  ScriptRunner
	Script  string
	TempDir string // 空表示系统临时目录
	Logger  *zap.Logger
}

// Run 执行一次完整的交接：写设置文件 -> 运行脚本 -> 删除设置文件。
// 子进程的错误原样返回（不吞掉）；只保证临时文件在所有路径上被删除。
// 没有 Runner 时返回 host_tool_not_found，不写任何文件。
func (p *Protocol) Run(ctx context.Context, s settings.Settings, b Batch) error {
	if p == nil || p.Runner == nil {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolNotFound, "",
			errors.New("no host tool runner configured")))
	}
	if len(b.Sources) != len(b.Outputs) {
		return errors.Errorf("handoff: %d sources but %d outputs", len(b.Sources), len(b.Outputs))
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := WriteSettings(p.TempDir, s)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove settings file", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	args, err := Args(path, b)
	if err != nil {
		return err
	}

	logger.Info("running host tool",
		zap.String("script", p.Script),
		zap.String("settings", path),
		zap.Int("files", len(b.Sources)),
	)
	return p.Runner.RunScript(ctx, p.Script, args)
}

// WriteSettings 把完整的 Settings 以 JSON 写入新的临时文件（已关闭），返回路径。
func WriteSettings(dir string, s settings.Settings) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "encode settings")
	}
	path, err := fsx.WriteTempFile(dir, settingsFilePattern, data)
	if err != nil {
		return "", errors.WithStack(domain.NewError(domain.ErrCodeIOFailed, dir, err))
	}
	return path, nil
}

// ReadSettings 读取由 WriteSettings 写出的文件（脚本侧契约的 Go 版本，用于校验与测试）。
func ReadSettings(path string) (settings.Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return settings.Settings{}, err
	}
	var s settings.Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}

// Args 构造脚本参数：[settings_file, srcroot, dstdir, sources_json, destinations_json]。
func Args(settingsPath string, b Batch) ([]string, error) {
	sources, err := json.Marshal(nonNil(b.Sources))
	if err != nil {
		return nil, errors.Wrap(err, "encode sources")
	}
	outputs, err := json.Marshal(nonNil(b.Outputs))
	if err != nil {
		return nil, errors.Wrap(err, "encode outputs")
	}
	return []string{settingsPath, b.SrcRoot, b.DstDir, string(sources), string(outputs)}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
