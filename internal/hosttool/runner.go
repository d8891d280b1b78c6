package hosttool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

// stderrTailLines 是失败时附带到错误里的 stderr 行数。
const stderrTailLines = 20

// Runner 以 background 模式启动 Blender 并执行一个 Python 脚本。
//
// 约束：
// - 一次 RunScript 只启动一个子进程，并等待其结束
// - 子进程的 stdout/stderr 按行写入日志；失败时错误里带 stderr 的末尾几行
type Runner struct {
	Dir     string        // Blender 所在目录；空表示从 PATH 查找
	Timeout time.Duration // 0 表示不限时
	Logger  *zap.Logger
}

// NewRunner 创建 Runner；logger 为 nil 时使用 zap.NewNop()。
func NewRunner(dir string, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Dir:     dir,
		Timeout: timeout,
		Logger:  logger.With(zap.String("component", "hosttool")),
	}
}

// ExitError 表示 Blender 以非零状态退出。
type ExitError struct {
	ExitCode int
	Stderr   []string
}

func (e *ExitError) Error() string {
	if len(e.Stderr) == 0 {
		return fmt.Sprintf("blender exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("blender exited with status %d:\n  %s", e.ExitCode, strings.Join(e.Stderr, "\n  "))
}

// ScriptArgs 返回“运行脚本”模式的完整参数（不含可执行文件本身）。
// "--" 之后的参数原样交给脚本（sys.argv）。
func ScriptArgs(script string, args []string) []string {
	argv := []string{
		"-noaudio",
		"--background",
		"--python-exit-code", "1",
		"--python", script,
		"--",
	}
	return append(argv, args...)
}

// RunScript 运行 script，并把 args 作为脚本参数传入。
func (r *Runner) RunScript(ctx context.Context, script string, args []string) error {
	exe, err := Executable(r.Dir)
	if err != nil {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolNotFound, r.Dir, err))
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := ScriptArgs(script, args)
	cmd := exec.CommandContext(ctx, exe, argv...)
	// Blender 可能派生子进程并继承管道；kill 之后最多再等这么久就强制关闭管道。
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "stderr pipe")
	}

	r.Logger.Debug("starting blender",
		zap.String("exe", exe),
		zap.Strings("args", argv),
	)
	started := time.Now()

	if err := cmd.Start(); err != nil {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolFailed, exe, err))
	}

	tail := newTail(stderrTailLines)
	var g errgroup.Group
	g.Go(func() error {
		return pump(stdout, func(line string) {
			r.Logger.Debug("blender", zap.String("stream", "stdout"), zap.String("line", line))
		})
	})
	g.Go(func() error {
		return pump(stderr, func(line string) {
			tail.add(line)
			r.Logger.Warn("blender", zap.String("stream", "stderr"), zap.String("line", line))
		})
	})

	// 必须先读完管道再 Wait（exec.Cmd 的约定）。
	if perr := g.Wait(); perr != nil {
		r.Logger.Warn("reading blender output failed", zap.Error(perr))
	}
	waitErr := cmd.Wait()

	dur := time.Since(started)
	if waitErr == nil {
		r.Logger.Info("blender finished", zap.Duration("duration", dur))
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolTimeout, exe,
			fmt.Errorf("blender did not finish within %s", r.Timeout)))
	}
	if ctx.Err() != nil {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolFailed, exe, ctx.Err()))
	}

	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return errors.WithStack(domain.NewError(domain.ErrCodeHostToolFailed, exe,
			&ExitError{ExitCode: ee.ExitCode(), Stderr: tail.lines()}))
	}
	return errors.WithStack(domain.NewError(domain.ErrCodeHostToolFailed, exe, waitErr))
}

// maxLineBytes 是单行日志保留的最大长度；超出部分丢弃，但管道会一直读到 EOF。
const maxLineBytes = 64 * 1024

// pump 按行读取 r 直到 EOF。超长行被截断而不是中止读取，否则子进程会阻塞在写满的管道上。
func pump(r io.Reader, fn func(line string)) error {
	br := bufio.NewReaderSize(r, 16*1024)
	var (
		line      []byte
		truncated bool
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(line) > 0 {
				fn(finishLine(line, truncated))
			}
			if err == io.EOF {
				return nil
			}
			_, _ = io.Copy(io.Discard, r)
			return err
		}
		if room := maxLineBytes - len(line); room > 0 {
			if len(chunk) > room {
				chunk, truncated = chunk[:room], true
			}
			line = append(line, chunk...)
		} else if len(chunk) > 0 {
			truncated = true
		}
		if isPrefix {
			continue
		}
		fn(finishLine(line, truncated))
		line, truncated = line[:0], false
	}
}

func finishLine(b []byte, truncated bool) string {
	if truncated {
		return string(b) + "...(truncated)"
	}
	return string(b)
}

// tail 保留最近 n 行。
type tail struct {
	mu  sync.Mutex
	n   int
	buf []string
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
}

func (t *tail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
