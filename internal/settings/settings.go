// Package settings 定义一次转换的参数记录（Settings）。
//
// Settings 是值类型：构造后按值传递，不在原处修改。所有字段都有默认值，
// 通过 Default/New/FromMap 得到的值总是完整填充的。
package settings

import (
	"fmt"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

type PhysicsEngine string

const (
	PhysicsBuiltin PhysicsEngine = "builtin"
	PhysicsBullet  PhysicsEngine = "bullet"
)

type AnimType string

const (
	AnimNone  AnimType = "none"
	AnimModel AnimType = "model"
	AnimChan  AnimType = "chan"
)

// CoordinateSystem 是模型的 up 轴约定。
type CoordinateSystem string

const (
	CoordY CoordinateSystem = "y"
	CoordZ CoordinateSystem = "z"
)

// PipelineEgg 是当前唯一的导出管线。
const PipelineEgg = "egg"

// FrameDefault 表示“使用导出器默认值”。
const FrameDefault = -1

// 序列化时使用的键名（与 Blender 侧脚本约定，不可改名）。
const (
	KeyPhysicsEngine    = "physics_engine"
	KeyBlenderDir       = "blender_dir"
	KeyAppendExt        = "append_ext"
	KeyPipeline         = "pipeline"
	KeyStartFrame       = "start_frame"
	KeyEndFrame         = "end_frame"
	KeyFPS              = "fps"
	KeyCharName         = "char_name"
	KeyAnimType         = "anim_type"
	KeyCoordinateSystem = "coordinate_system"
)

var keys = []string{
	KeyPhysicsEngine,
	KeyBlenderDir,
	KeyAppendExt,
	KeyPipeline,
	KeyStartFrame,
	KeyEndFrame,
	KeyFPS,
	KeyCharName,
	KeyAnimType,
	KeyCoordinateSystem,
}

// Keys 返回全部字段键名（固定顺序）。
func Keys() []string {
	return append([]string(nil), keys...)
}

// Settings 是转换参数。CharName 为空表示“未指定”（由导出器自动命名）。
type Settings struct {
	PhysicsEngine    PhysicsEngine
	BlenderDir       string
	AppendExt        bool
	Pipeline         string
	StartFrame       int
	EndFrame         int
	FPS              int
	CharName         string
	AnimType         AnimType
	CoordinateSystem CoordinateSystem
}

// Default 返回全部字段为默认值的 Settings。
func Default() Settings {
	return Settings{
		PhysicsEngine:    PhysicsBuiltin,
		BlenderDir:       "",
		AppendExt:        false,
		Pipeline:         PipelineEgg,
		StartFrame:       FrameDefault,
		EndFrame:         FrameDefault,
		FPS:              FrameDefault,
		CharName:         "",
		AnimType:         AnimNone,
		CoordinateSystem: CoordZ,
	}
}

// Option 修改 New 构造过程中的 Settings。
type Option func(*Settings)

func WithPhysicsEngine(p PhysicsEngine) Option { return func(s *Settings) { s.PhysicsEngine = p } }
func WithBlenderDir(dir string) Option        { return func(s *Settings) { s.BlenderDir = dir } }
func WithAppendExt(v bool) Option             { return func(s *Settings) { s.AppendExt = v } }
func WithPipeline(name string) Option         { return func(s *Settings) { s.Pipeline = name } }
func WithStartFrame(n int) Option             { return func(s *Settings) { s.StartFrame = n } }
func WithEndFrame(n int) Option               { return func(s *Settings) { s.EndFrame = n } }
func WithFPS(n int) Option                    { return func(s *Settings) { s.FPS = n } }
func WithCharName(name string) Option         { return func(s *Settings) { s.CharName = name } }
func WithAnimType(a AnimType) Option          { return func(s *Settings) { s.AnimType = a } }
func WithCoordinateSystem(c CoordinateSystem) Option {
	return func(s *Settings) { s.CoordinateSystem = c }
}

// New 以 Default 为基础依次应用 opts，并校验结果。
func New(opts ...Option) (Settings, error) {
	s := Default()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// With 返回应用了 opts 的副本（原值不变）。
func (s Settings) With(opts ...Option) (Settings, error) {
	c := s
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if err := c.Validate(); err != nil {
		return Settings{}, err
	}
	return c, nil
}

// Validate 检查枚举与帧参数。未知 pipeline 返回 pipeline_unknown，其余返回 settings_invalid。
func (s Settings) Validate() error {
	switch s.Pipeline {
	case PipelineEgg:
	default:
		return domain.NewError(domain.ErrCodePipelineUnknown, "", fmt.Errorf("unknown pipeline: %q", s.Pipeline))
	}

	switch s.PhysicsEngine {
	case PhysicsBuiltin, PhysicsBullet:
	default:
		return invalid("%s must be builtin or bullet, got %q", KeyPhysicsEngine, s.PhysicsEngine)
	}
	switch s.AnimType {
	case AnimNone, AnimModel, AnimChan:
	default:
		return invalid("%s must be none, model or chan, got %q", KeyAnimType, s.AnimType)
	}
	switch s.CoordinateSystem {
	case CoordY, CoordZ:
	default:
		return invalid("%s must be y or z, got %q", KeyCoordinateSystem, s.CoordinateSystem)
	}

	if s.StartFrame < FrameDefault {
		return invalid("%s must be -1 or >= 0, got %d", KeyStartFrame, s.StartFrame)
	}
	if s.EndFrame < FrameDefault {
		return invalid("%s must be -1 or >= 0, got %d", KeyEndFrame, s.EndFrame)
	}
	if s.StartFrame >= 0 && s.EndFrame >= 0 && s.EndFrame < s.StartFrame {
		return invalid("%s (%d) is before %s (%d)", KeyEndFrame, s.EndFrame, KeyStartFrame, s.StartFrame)
	}
	if s.FPS != FrameDefault && s.FPS <= 0 {
		return invalid("%s must be -1 or > 0, got %d", KeyFPS, s.FPS)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return domain.NewError(domain.ErrCodeSettingsInvalid, "", fmt.Errorf(format, args...))
}
