// Package pipeline 定义转换策略：核心流程只依赖 Converter 接口，
// 具体由哪种导出管线完成（目前只有 egg）在每次 run 开始时按名字选定一次。
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/John-Robertt/blend2egg/internal/handoff"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

// Converter 把一个或一批源文件交给宿主工具转换。
//
// 约束：
// - 一次调用只启动一次宿主工具（单文件与批量都一样）
// - files/outputs 按下标一一对应，且均为绝对路径
// - 不吞错误：子进程失败原样向上返回
type Converter interface {
	Name() string
	TargetExt() string
	ConvertSingle(ctx context.Context, src, dst string) error
	ConvertBatch(ctx context.Context, srcroot, dstdir string, files, outputs []string) error
}

// Egg 通过 handoff 协议驱动 Blender 上的导出脚本，产出 .egg。
type Egg struct {
	settings settings.Settings
	protocol *handoff.Protocol
}

func NewEgg(s settings.Settings, p *handoff.Protocol) *Egg {
	return &Egg{settings: s, protocol: p}
}

func (e *Egg) Name() string      { return settings.PipelineEgg }
func (e *Egg) TargetExt() string { return ".egg" }

// ConvertSingle 等价于以 src/dst 各自所在目录为根的单元素批量。
func (e *Egg) ConvertSingle(ctx context.Context, src, dst string) error {
	return e.ConvertBatch(ctx, filepath.Dir(src), filepath.Dir(dst), []string{src}, []string{dst})
}

func (e *Egg) ConvertBatch(ctx context.Context, srcroot, dstdir string, files, outputs []string) error {
	return e.protocol.Run(ctx, e.settings, handoff.Batch{
		SrcRoot: srcroot,
		DstDir:  dstdir,
		Sources: files,
		Outputs: outputs,
	})
}
