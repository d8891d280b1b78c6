package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/blend2egg/internal/app/run"
	"github.com/John-Robertt/blend2egg/internal/config"
	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/handoff"
	"github.com/John-Robertt/blend2egg/internal/hosttool"
	"github.com/John-Robertt/blend2egg/internal/infra/fsx"
	"github.com/John-Robertt/blend2egg/internal/infra/journal"
	"github.com/John-Robertt/blend2egg/internal/infra/logx"
	"github.com/John-Robertt/blend2egg/internal/infra/metrics"
	"github.com/John-Robertt/blend2egg/internal/pipeline"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

const hostToolHint = "Blender not found! Try adding Blender to the system PATH or using --blender-dir to point to its location"

// exitError 携带进程退出码；消息已由调用方输出。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数错误（退出码 2）。
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type cliFlags struct {
	physicsEngine string
	srcDir        string
	blenderDir    string
	appendExt     bool
	pipeline      string
	startFrame    int
	endFrame      int
	fps           int
	charName      string
	animType      string
	coordSystem   string

	dryRun      bool
	report      string
	journal     string
	metricsFile string
	script      string
	timeout     time.Duration
	configPath  string
	logLevel    string
	logFormat   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 解析参数并执行一次转换，返回进程退出码（0 成功；1 失败；2 参数错误）。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n\n", err)
	fmt.Fprint(stderr, cmd.UsageString())
	return 2
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "blend2egg [flags] SRC... DST",
		Short: "Convert Blender .blend files to Panda3D .egg files",
		Long: `blend2egg converts Blender scene files to Panda3D egg files by running Blender
in the background with an export script.

SRC may be a single .blend file, several .blend files, or one directory (searched
recursively for .blend files). DST without an extension is treated as a directory;
the source tree is mirrored under it.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return &usageError{err: fmt.Errorf("requires at least 2 arg(s) (SRC... DST), only received %d", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := runConvert(cmd.Context(), cmd, f, args, stdout, stderr); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	fl := cmd.Flags()
	fl.StringVar(&f.physicsEngine, "physics-engine", string(settings.PhysicsBuiltin), "the physics engine to build collision solids for (builtin, bullet)")
	fl.StringVar(&f.srcDir, "srcdir", "", "a common source directory to use when specifying multiple source files")
	fl.StringVar(&f.blenderDir, "blender-dir", "", "directory that contains the blender binary")
	fl.BoolVar(&f.appendExt, "append-ext", false, "append extension on the destination instead of replacing it (batch mode only)")
	fl.StringVar(&f.pipeline, "pipeline", settings.PipelineEgg, "the backend pipeline used to convert files (egg)")
	fl.IntVar(&f.startFrame, "sf", settings.FrameDefault, "start frame of animation, -1 to use the default")
	fl.IntVar(&f.endFrame, "ef", settings.FrameDefault, "end frame of animation, -1 to use the default")
	fl.IntVar(&f.fps, "fps", settings.FrameDefault, "frame rate of animation, -1 to use the default")
	fl.StringVar(&f.charName, "cn", "", "explicit name to give the character/anim bundle")
	fl.StringVar(&f.animType, "ac", string(settings.AnimNone), "animation conversion type (none, model, chan)")
	fl.StringVar(&f.coordSystem, "cs", string(settings.CoordZ), "coordinate system up-axis of the model (y, z)")

	fl.BoolVar(&f.dryRun, "dry-run", false, "plan and report without running Blender")
	fl.StringVar(&f.report, "report", "", "write the run report as JSON to this file (- for stdout)")
	fl.StringVar(&f.journal, "journal", "", "append the run to this SQLite journal")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this file")
	fl.StringVar(&f.script, "script", "", "Blender-side export script (default: "+pipeline.ScriptName+" next to the executable, else the built-in copy)")
	fl.DurationVar(&f.timeout, "timeout", 0, "kill Blender after this long (0 = no limit)")
	fl.StringVar(&f.configPath, "config", "", "config file (default: ./"+config.FileName+" if present)")
	fl.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "log format (console, json)")
	return cmd
}

func runConvert(ctx context.Context, cmd *cobra.Command, f *cliFlags, args []string, stdout, stderr io.Writer) int {
	paths := make([]string, len(args))
	for i, a := range args {
		paths[i] = stripQuotes(a)
	}
	srcs, dst := paths[:len(paths)-1], paths[len(paths)-1]

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "failed to read working directory: %v\n", err)
		return 1
	}

	changed := cmd.Flags().Changed
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigPath:          stripQuotes(f.configPath),
		BlenderDir:          stripQuotes(f.blenderDir),
		BlenderDirSet:       changed("blender-dir"),
		Script:              stripQuotes(f.script),
		ScriptSet:           changed("script"),
		Pipeline:            f.pipeline,
		PipelineSet:         changed("pipeline"),
		PhysicsEngine:       f.physicsEngine,
		PhysicsEngineSet:    changed("physics-engine"),
		CoordinateSystem:    f.coordSystem,
		CoordinateSystemSet: changed("cs"),
		AnimType:            f.animType,
		AnimTypeSet:         changed("ac"),
		FPS:                 f.fps,
		FPSSet:              changed("fps"),
		AppendExt:           f.appendExt,
		AppendExtSet:        changed("append-ext"),
		StartFrame:          f.startFrame,
		StartFrameSet:       changed("sf"),
		EndFrame:            f.endFrame,
		EndFrameSet:         changed("ef"),
		CharName:            f.charName,
		Timeout:             f.timeout,
		TimeoutSet:          changed("timeout"),
		LogLevel:            f.logLevel,
		LogLevelSet:         changed("log-level"),
		LogFormat:           f.logFormat,
		LogFormatSet:        changed("log-format"),
		Journal:             stripQuotes(f.journal),
		JournalSet:          changed("journal"),
		MetricsFile:         stripQuotes(f.metricsFile),
		MetricsFileSet:      changed("metrics-file"),
		Report:              reportArg(f.report),
		ReportSet:           changed("report") && f.report != "-",
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger := logx.New(logx.Options{
		Level:  eff.LogLevel,
		Format: eff.LogFormat,
		Color:  isTerminal(stderr),
		Output: stderr,
	})
	defer func() { _ = logger.Sync() }()
	if eff.ConfigFile != "" {
		logger.Debug("loaded config", zap.String("path", eff.ConfigFile))
	}

	s := eff.Settings
	var script string
	if !f.dryRun {
		dir, ok := resolveHostTool(s.BlenderDir, logger)
		if !ok {
			fmt.Fprintln(stderr, hostToolHint)
			return 1
		}
		if dir != s.BlenderDir {
			if s, err = s.With(settings.WithBlenderDir(dir)); err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return 1
			}
		}
		var cleanup func()
		if script, cleanup, err = pipeline.ResolveScript(eff.Script, executableDir(), ""); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer cleanup()
	}

	var collector *metrics.Collector
	if eff.MetricsFile != "" {
		collector = metrics.NewCollector(logger)
	}
	var (
		ui       *progressUI
		progress run.Observer
	)
	if w, ok := pickProgressWriter(stdout, stderr); ok {
		ui = newProgressUI(w)
		progress = ui
	}

	rr := run.Execute(ctx, run.Request{
		Sources:  srcs,
		Dst:      dst,
		SrcDir:   stripQuotes(f.srcDir),
		Settings: s,
		DryRun:   f.dryRun,
	}, run.Deps{
		Pipelines: pipeline.Default(),
		Protocol: &handoff.Protocol{
			Runner: hosttool.NewRunner(s.BlenderDir, eff.Timeout, logger),
			Script: script,
			Logger: logger,
		},
		Logger:   logger,
		Observer: run.Fanout(progress, metricsObserver(collector)),
	})
	if ui != nil {
		ui.Close()
	}

	code := 0
	if err := emitSinks(ctx, eff, f.report == "-", rr, collector, stdout, logger); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		code = 1
	}

	if !rr.OK() {
		reportFailure(stderr, rr)
		return 1
	}
	fmt.Fprintf(stderr, "done: %s\n", summaryLine(rr))
	return code
}

// resolveHostTool 返回可用的 Blender 目录（空串表示使用 PATH），找不到时 ok=false。
func resolveHostTool(dir string, logger *zap.Logger) (string, bool) {
	if dir == "" && !hosttool.Exists("") {
		if found, ok := hosttool.Locate(); ok {
			logger.Info("auto-detected Blender", zap.String("dir", found))
			dir = found
		}
	}
	return dir, hosttool.Exists(dir)
}

// emitSinks 把报告写到 --report/--journal/--metrics-file；逐个尝试，返回第一个错误。
func emitSinks(ctx context.Context, eff config.Effective, reportToStdout bool, rr domain.RunReport, collector *metrics.Collector, stdout io.Writer, logger *zap.Logger) error {
	var errs []error

	if reportToStdout {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rr); err != nil {
			errs = append(errs, fmt.Errorf("write report: %w", err))
		}
	} else if eff.Report != "" {
		if err := writeReportFile(eff.Report, rr); err != nil {
			errs = append(errs, fmt.Errorf("write report %q: %w", eff.Report, err))
		} else {
			logger.Debug("report written", zap.String("path", eff.Report))
		}
	}

	if eff.Journal != "" {
		if err := recordJournal(ctx, eff.Journal, rr); err != nil {
			errs = append(errs, fmt.Errorf("journal %q: %w", eff.Journal, err))
		}
	}

	if collector != nil {
		collector.RecordRun(rr)
		if err := collector.WriteTextfile(eff.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics %q: %w", eff.MetricsFile, err))
		}
	}
	return errors.Join(errs...)
}

func recordJournal(ctx context.Context, path string, rr domain.RunReport) error {
	store, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rr)
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

// reportFailure 输出失败信息。转换阶段的失败附带完整调用栈（%+v）与统一提示；
// 校验阶段的失败只输出错误本身。
func reportFailure(w io.Writer, rr domain.RunReport) {
	converting := rr.Summary.Failed > 0 || rr.Summary.Missing > 0
	if !converting {
		fmt.Fprintf(w, "error: %s\n", rr.ErrorMsg)
		return
	}
	if rr.Err != nil {
		fmt.Fprintf(w, "%+v\n", rr.Err)
	}
	for _, f := range rr.Files {
		if f.Status == domain.FileStatusMissing {
			fmt.Fprintf(w, "missing output: %s (from %s)\n", f.Dst, f.Src)
		}
	}
	fmt.Fprintln(w, "Failed to convert all files")
}

func summaryLine(rr domain.RunReport) string {
	if rr.DryRun {
		return fmt.Sprintf("planned=%d (dry-run)", rr.Summary.Planned)
	}
	return fmt.Sprintf("converted=%d missing=%d failed=%d",
		rr.Summary.Converted, rr.Summary.Missing, rr.Summary.Failed)
}

// stripQuotes 去掉路径两端的双引号（Windows 的某些启动器会原样传入）。
func stripQuotes(s string) string {
	return strings.Trim(s, `"`)
}

func reportArg(s string) string {
	if s == "-" {
		return ""
	}
	return stripQuotes(s)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// pickProgressWriter 只在交互终端启用进度输出；默认走 stderr。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	if isTerminal(stderr) {
		return stderr, true
	}
	if isTerminal(stdout) {
		return stdout, true
	}
	return nil, false
}

type phaseMetrics struct{ c *metrics.Collector }

func metricsObserver(c *metrics.Collector) run.Observer {
	if c == nil {
		return nil
	}
	return phaseMetrics{c: c}
}

func (m phaseMetrics) OnStart(string, run.Request) {}
func (m phaseMetrics) OnPhaseDone(name string, _ map[string]any, dur time.Duration) {
	m.c.ObservePhase(name, dur)
}
func (m phaseMetrics) OnFileDone(int, int, domain.FileResult) {}
