package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

const (
	// FileName 是未指定 --config 时在 cwd 下查找的配置文件（可选）。
	FileName = "blend2egg.yaml"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// CLIArgs 是命令行给出的值，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --append-ext=false 必须能覆盖配置文件中的 append_ext: true。
type CLIArgs struct {
	ConfigPath string

	BlenderDir    string
	BlenderDirSet bool
	Script        string
	ScriptSet     bool
	Pipeline      string
	PipelineSet   bool

	PhysicsEngine       string
	PhysicsEngineSet    bool
	CoordinateSystem    string
	CoordinateSystemSet bool
	AnimType            string
	AnimTypeSet         bool
	FPS                 int
	FPSSet              bool
	AppendExt           bool
	AppendExtSet        bool

	// 以下三项只由 CLI 控制（与单次导出的具体内容相关）。
	StartFrame    int
	StartFrameSet bool
	EndFrame      int
	EndFrameSet   bool
	CharName      string

	Timeout    time.Duration
	TimeoutSet bool

	LogLevel     string
	LogLevelSet  bool
	LogFormat    string
	LogFormatSet bool

	Journal        string
	JournalSet     bool
	MetricsFile    string
	MetricsFileSet bool
	Report         string
	ReportSet      bool
}

// FileConfig 对应 blend2egg.yaml 的解析结构。未知字段会被拒绝。
type FileConfig struct {
	BlenderDir       string    `yaml:"blender_dir"`
	Script           string    `yaml:"script"`
	Pipeline         string    `yaml:"pipeline"`
	PhysicsEngine    string    `yaml:"physics_engine"`
	CoordinateSystem string    `yaml:"coordinate_system"`
	AnimType         string    `yaml:"anim_type"`
	FPS              *int      `yaml:"fps"`
	AppendExt        *bool     `yaml:"append_ext"`
	Timeout          string    `yaml:"timeout"`
	Log              LogConfig `yaml:"log"`
	Journal          string    `yaml:"journal"`
	MetricsFile      string    `yaml:"metrics_file"`
	Report           string    `yaml:"report"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Effective 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 路径字段均为绝对路径；空串表示未启用。
type Effective struct {
	ConfigFile string // 实际读取的配置文件；未读取时为空

	Settings settings.Settings
	Script   string
	Timeout  time.Duration

	LogLevel  string
	LogFormat string

	Journal     string
	MetricsFile string
	Report      string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s: config file %q: %v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: config file %q", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) 给了 --config：必须存在，否则 config_not_found
// 2) 未给：尝试读取 <cwd>/blend2egg.yaml（可选）
//
// 覆盖优先级（固定）：CLI（显式指定）> 配置文件 > 内置默认。
// 配置文件中的相对路径以配置文件所在目录为基准；CLI 中的相对路径以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (Effective, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return Effective{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	if !exists {
		cfgPath = ""
	}
	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwd string, cli CLIArgs, fc FileConfig, cfgPath string) (Effective, error) {
	cfgDir := cwd
	if cfgPath != "" {
		cfgDir = filepath.Dir(cfgPath)
	}
	invalid := func(err error) (Effective, error) {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// 路径类：CLI（相对 cwd）> 配置（相对配置文件目录）> 空
	pathOf := func(cliVal string, cliSet bool, fileVal string) string {
		if cliSet {
			return absCleanFrom(cwd, cliVal)
		}
		return absCleanFrom(cfgDir, fileVal)
	}
	strOf := func(cliVal string, cliSet bool, fileVal, def string) string {
		if cliSet {
			return strings.TrimSpace(cliVal)
		}
		if v := strings.TrimSpace(fileVal); v != "" {
			return v
		}
		return def
	}

	var opts []settings.Option
	if dir := pathOf(cli.BlenderDir, cli.BlenderDirSet, fc.BlenderDir); dir != "" {
		opts = append(opts, settings.WithBlenderDir(dir))
	}
	opts = append(opts,
		settings.WithPipeline(strings.ToLower(strOf(cli.Pipeline, cli.PipelineSet, fc.Pipeline, settings.PipelineEgg))),
		settings.WithPhysicsEngine(settings.PhysicsEngine(strOf(cli.PhysicsEngine, cli.PhysicsEngineSet, fc.PhysicsEngine, string(settings.PhysicsBuiltin)))),
		settings.WithCoordinateSystem(settings.CoordinateSystem(strOf(cli.CoordinateSystem, cli.CoordinateSystemSet, fc.CoordinateSystem, string(settings.CoordZ)))),
		settings.WithAnimType(settings.AnimType(strOf(cli.AnimType, cli.AnimTypeSet, fc.AnimType, string(settings.AnimNone)))),
		settings.WithCharName(strings.TrimSpace(cli.CharName)),
	)
	switch {
	case cli.FPSSet:
		opts = append(opts, settings.WithFPS(cli.FPS))
	case fc.FPS != nil:
		opts = append(opts, settings.WithFPS(*fc.FPS))
	}
	switch {
	case cli.AppendExtSet:
		opts = append(opts, settings.WithAppendExt(cli.AppendExt))
	case fc.AppendExt != nil:
		opts = append(opts, settings.WithAppendExt(*fc.AppendExt))
	}
	if cli.StartFrameSet {
		opts = append(opts, settings.WithStartFrame(cli.StartFrame))
	}
	if cli.EndFrameSet {
		opts = append(opts, settings.WithEndFrame(cli.EndFrame))
	}

	// Settings 的校验错误（settings_invalid/pipeline_unknown）原样返回，保留其 error_code。
	s, err := settings.New(opts...)
	if err != nil {
		return Effective{}, err
	}

	timeout := time.Duration(0)
	switch {
	case cli.TimeoutSet:
		timeout = cli.Timeout
	case strings.TrimSpace(fc.Timeout) != "":
		d, e := time.ParseDuration(strings.TrimSpace(fc.Timeout))
		if e != nil {
			return invalid(fmt.Errorf("timeout: %w", e))
		}
		timeout = d
	}
	if timeout < 0 {
		return invalid(fmt.Errorf("timeout must not be negative, got %s", timeout))
	}

	level := strings.ToLower(strOf(cli.LogLevel, cli.LogLevelSet, fc.Log.Level, DefaultLogLevel))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Errorf("log.level must be debug, info, warn or error, got %q", level))
	}
	format := strings.ToLower(strOf(cli.LogFormat, cli.LogFormatSet, fc.Log.Format, DefaultLogFormat))
	switch format {
	case "console", "json":
	default:
		return invalid(fmt.Errorf("log.format must be console or json, got %q", format))
	}

	return Effective{
		ConfigFile:  cfgPath,
		Settings:    s,
		Script:      pathOf(cli.Script, cli.ScriptSet, fc.Script),
		Timeout:     timeout,
		LogLevel:    level,
		LogFormat:   format,
		Journal:     pathOf(cli.Journal, cli.JournalSet, fc.Journal),
		MetricsFile: pathOf(cli.MetricsFile, cli.MetricsFileSet, fc.MetricsFile),
		Report:      pathOf(cli.Report, cli.ReportSet, fc.Report),
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；p 为空时返回空串。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）；空文件等价于全部缺省。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
