package run

import (
	"time"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

// Observer 用于把“运行进度/阶段/文件结果”从核心执行流程中解耦出来。
//
// 约束：run 包只负责发事件，不做任何输出；事件总是在调用 Execute 的 goroutine 上按顺序发出。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(runID string, req Request)
	// OnPhaseDone 在阶段（plan/convert/verify）结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnFileDone 在逐个确认输出文件后调用。
	OnFileDone(idx, total int, res domain.FileResult)
}

// Fanout 把事件依次转发给多个 Observer（nil 会被跳过）。
func Fanout(obs ...Observer) Observer {
	out := make(fanout, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type fanout []Observer

func (f fanout) OnStart(runID string, req Request) {
	for _, o := range f {
		o.OnStart(runID, req)
	}
}

func (f fanout) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	for _, o := range f {
		o.OnPhaseDone(name, fields, dur)
	}
}

func (f fanout) OnFileDone(idx, total int, res domain.FileResult) {
	for _, o := range f {
		o.OnFileDone(idx, total, res)
	}
}

type nopObserver struct{}

func (nopObserver) OnStart(string, Request)                          {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnFileDone(int, int, domain.FileResult)            {}
