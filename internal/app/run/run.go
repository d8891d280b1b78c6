package run

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/blend2egg/internal/app/planner"
	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/handoff"
	"github.com/John-Robertt/blend2egg/internal/infra/fsx"
	"github.com/John-Robertt/blend2egg/internal/pipeline"
	"github.com/John-Robertt/blend2egg/internal/scan"
	"github.com/John-Robertt/blend2egg/internal/settings"
)

// Request 是一次转换请求（路径可为相对路径）。
type Request struct {
	Sources  []string
	Dst      string
	SrcDir   string
	Settings settings.Settings
	DryRun   bool
}

// Deps 是 Execute 的协作者；除 Pipelines 外都可以为空。
// Protocol 为空（或没有 Runner）时只有 dry-run 能成功，实际转换以 host_tool_not_found 失败。
type Deps struct {
	Pipelines pipeline.Registry
	Protocol  *handoff.Protocol
	Logger    *zap.Logger
	Observer  Observer
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
//
// 顺序固定：校验管线与参数 -> 规划 -> （dry-run 到此为止）-> 建输出目录 ->
// 调用一次宿主工具 -> 逐个确认输出文件。任何一步失败都不会进入下一步。
func Execute(ctx context.Context, req Request, deps Deps) domain.RunReport {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Pipeline:  req.Settings.Pipeline,
		DryRun:    req.DryRun,
		Dst:       req.Dst,
		StartedAt: time.Now().UTC(),
		Files:     []domain.FileResult{},
	}
	logger = logger.With(zap.String("run_id", rr.RunID))
	obs.OnStart(rr.RunID, req)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		if !rr.OK() {
			logger.Error("run failed", zap.String("error_code", rr.ErrorCode), zap.Error(rr.Err))
		}
		return rr
	}

	// 管线名在规划之前校验，未知名字不做任何文件系统操作。
	entry, err := deps.Pipelines.Lookup(req.Settings.Pipeline)
	if err != nil {
		rr.Fail(domain.ErrCodePipelineUnknown, err)
		return finish()
	}
	if err := req.Settings.Validate(); err != nil {
		rr.Fail(codeOr(err, domain.ErrCodeSettingsInvalid), err)
		return finish()
	}

	planStarted := time.Now()
	plan, err := planner.Plan(planner.Input{
		SrcDir:    req.SrcDir,
		Sources:   req.Sources,
		Dst:       req.Dst,
		SourceExt: scan.SourceExt,
		TargetExt: entry.TargetExt,
		AppendExt: req.Settings.AppendExt,
	})
	if err != nil {
		rr.Fail(codeOr(err, domain.ErrCodeIOFailed), err)
		return finish()
	}
	rr.SrcDir = plan.SrcDir
	rr.Dst = plan.Dst
	rr.IsBatch = plan.IsBatch
	rr.Files = fileResults(plan, domain.FileStatusPlanned)
	obs.OnPhaseDone("plan", map[string]any{
		"files":    len(plan.Files),
		"batch":    plan.IsBatch,
		"pipeline": entry.Name,
	}, time.Since(planStarted))
	logger.Info("planned conversion",
		zap.String("srcdir", plan.SrcDir),
		zap.String("dst", plan.Dst),
		zap.Bool("batch", plan.IsBatch),
		zap.Int("files", len(plan.Files)),
	)

	if req.DryRun {
		rr.Status = domain.StatusPlanned
		return finish()
	}

	if err := fsx.EnsureParentDirs(plan.Outputs()); err != nil {
		rr.Files = fileResults(plan, domain.FileStatusFailed)
		rr.Fail(domain.ErrCodeIOFailed, domain.NewError(domain.ErrCodeIOFailed, plan.Dst, err))
		return finish()
	}

	protocol := deps.Protocol
	if protocol == nil {
		protocol = &handoff.Protocol{}
	}
	conv := entry.New(req.Settings, protocol)

	convStarted := time.Now()
	err = dispatch(ctx, conv, plan)
	obs.OnPhaseDone("convert", map[string]any{
		"files": len(plan.Files),
		"ok":    err == nil,
	}, time.Since(convStarted))
	if err != nil {
		rr.Files = fileResults(plan, domain.FileStatusFailed)
		rr.Fail(codeOr(err, domain.ErrCodeHostToolFailed), err)
		return finish()
	}

	verifyStarted := time.Now()
	missing := verifyOutputs(&rr, obs)
	obs.OnPhaseDone("verify", map[string]any{
		"converted": len(rr.Files) - missing,
		"missing":   missing,
	}, time.Since(verifyStarted))
	if missing > 0 {
		rr.Fail(domain.ErrCodeOutputMissing, domain.NewError(domain.ErrCodeOutputMissing, plan.Dst,
			fmt.Errorf("%d of %d outputs were not produced", missing, len(rr.Files))))
		return finish()
	}

	rr.Status = domain.StatusSucceeded
	return finish()
}

// dispatch 只调用一次转换器：批量走 ConvertBatch，单文件走 ConvertSingle。
func dispatch(ctx context.Context, conv pipeline.Converter, plan domain.ConversionPlan) error {
	if plan.IsBatch {
		return conv.ConvertBatch(ctx, plan.SrcDir, plan.Dst, plan.Files, plan.Outputs())
	}
	p := plan.Pairs[0]
	return conv.ConvertSingle(ctx, p.Src, p.Dst)
}

// verifyOutputs 逐个确认输出文件存在，返回缺失数量。
func verifyOutputs(rr *domain.RunReport, obs Observer) int {
	missing := 0
	for i := range rr.Files {
		fi, err := os.Stat(rr.Files[i].Dst)
		if err == nil && fi.Mode().IsRegular() {
			rr.Files[i].Status = domain.FileStatusConverted
		} else {
			rr.Files[i].Status = domain.FileStatusMissing
			missing++
		}
		obs.OnFileDone(i+1, len(rr.Files), rr.Files[i])
	}
	return missing
}

func fileResults(plan domain.ConversionPlan, status string) []domain.FileResult {
	out := make([]domain.FileResult, 0, len(plan.Pairs))
	for _, p := range plan.Pairs {
		out = append(out, domain.FileResult{Src: p.Src, Dst: p.Dst, Status: status})
	}
	return out
}

func codeOr(err error, fallback string) string {
	if c := domain.Code(err); c != "" {
		return c
	}
	return fallback
}
