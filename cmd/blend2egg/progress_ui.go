package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/blend2egg/internal/app/run"
	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 --report - 的 JSON
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：Blender 长时间运行时定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	files       int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(runID string, req run.Request) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.startedAt = now

	mode := "convert"
	if req.DryRun {
		mode = "dry-run"
	}
	s := req.Settings
	fmt.Fprintf(p.w, "[%s] blend2egg %s (run %s)\n", now.Format("15:04:05"), mode, shortID(runID))
	fmt.Fprintln(p.w, "settings:")
	fmt.Fprintf(p.w, "  pipeline: %s  physics: %s  up-axis: %s\n", s.Pipeline, s.PhysicsEngine, s.CoordinateSystem)
	fmt.Fprintf(p.w, "  animation: %s frames=%s fps=%s%s\n",
		s.AnimType, frameRange(s.StartFrame, s.EndFrame), orDefault(s.FPS), charNote(s.CharName))
	fmt.Fprintf(p.w, "  blender: %s\n", blenderLabel(s.BlenderDir))
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "plan":
		p.files = intField(fields, "files")
		mode := "single"
		if b, _ := fields["batch"].(bool); b {
			mode = "batch"
		}
		fmt.Fprintf(p.w, "plan: files=%d mode=%s (%s)\n", p.files, mode, formatShortDuration(dur))
		// 规划之后若不是 dry-run，紧接着就是 Blender 运行（一次性、可能很久）。
		p.startTickerLocked()
	case "convert":
		p.stopTickerLocked()
		status := "ok"
		if ok, _ := fields["ok"].(bool); !ok {
			status = "FAIL"
		}
		fmt.Fprintf(p.w, "blender: %s (%s)\n", status, formatShortDuration(dur))
	case "verify":
		fmt.Fprintf(p.w, "verify: converted=%d missing=%d (%s)\n",
			intField(fields, "converted"), intField(fields, "missing"), formatShortDuration(dur))
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFileDone(idx, total int, res domain.FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := "OK"
	if res.Status != domain.FileStatusConverted {
		status = strings.ToUpper(res.Status)
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s\n", idx, total, status, truncate(res.Dst, 160))
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive（dry-run 或提前失败时 convert 阶段不会到来）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) startTickerLocked() {
	if p.tickerStarted {
		return
	}
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "blender running: files=%d elapsed=%s\n",
						p.files, formatElapsed(time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func frameRange(start, end int) string {
	return orDefault(start) + ".." + orDefault(end)
}

func orDefault(n int) string {
	if n == settings.FrameDefault {
		return "default"
	}
	return fmt.Sprintf("%d", n)
}

func charNote(name string) string {
	if name == "" {
		return ""
	}
	return " char=" + name
}

func blenderLabel(dir string) string {
	if dir == "" {
		return "PATH"
	}
	return dir
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return "..." + s[len(s)-(max-3):]
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
