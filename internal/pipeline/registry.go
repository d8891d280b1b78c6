package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/handoff"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

// Factory 用本次 run 的 Settings 与交接协议构造 Converter。
type Factory func(s settings.Settings, p *handoff.Protocol) Converter

// Entry 是注册表中的一项；TargetExt 在构造 Converter 之前就要用于规划输出路径。
type Entry struct {
	Name      string
	TargetExt string
	New       Factory
}

// Registry 是封闭的管线注册表（按 name 索引）。
type Registry struct {
	byName map[string]Entry
}

func NewRegistry(entries ...Entry) (Registry, error) {
	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			return Registry{}, fmt.Errorf("pipeline name must not be empty")
		}
		if e.New == nil {
			return Registry{}, fmt.Errorf("pipeline %q has no factory", name)
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate pipeline %q", name)
		}
		e.Name = name
		byName[name] = e
	}
	return Registry{byName: byName}, nil
}

// Default 返回内置注册表：只有 egg。
func Default() Registry {
	r, err := NewRegistry(Entry{
		Name:      settings.PipelineEgg,
		TargetExt: ".egg",
		New: func(s settings.Settings, p *handoff.Protocol) Converter {
			return NewEgg(s, p)
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup 在规划之前校验管线名；未知名字立即失败（pipeline_unknown）。
func (r Registry) Lookup(name string) (Entry, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if e, ok := r.byName[key]; ok {
		return e, nil
	}
	return Entry{}, domain.NewError(domain.ErrCodePipelineUnknown, "",
		fmt.Errorf("unknown pipeline %q (known: %s)", name, strings.Join(r.Names(), ", ")))
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
