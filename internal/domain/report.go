package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusPlanned   = "planned" // dry-run
)

const (
	FileStatusPlanned   = "planned"
	FileStatusConverted = "converted"
	FileStatusMissing   = "missing"
	FileStatusFailed    = "failed"
)

// RunReport 是对外稳定输出（--report JSON）的结构。
type RunReport struct {
	RunID    string `json:"run_id"`
	Pipeline string `json:"pipeline"`
	DryRun   bool   `json:"dry_run"`

	SrcDir  string `json:"srcdir"`
	Dst     string `json:"dst"`
	IsBatch bool   `json:"is_batch"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Summary ReportSummary `json:"summary"`
	Files   []FileResult  `json:"files"`

	// Err 是导致失败的原始错误（可能带调用栈），只供进程内打印，不进入 JSON。
	Err error `json:"-"`
}

type ReportSummary struct {
	Planned   int `json:"planned"`
	Converted int `json:"converted"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

type FileResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
}

// Fail 把整个 run 标记为失败；err 的 error_code 由 Code 提取。
func (r *RunReport) Fail(code string, err error) {
	r.Status = StatusFailed
	r.ErrorCode = code
	r.Err = err
	if err != nil {
		r.ErrorMsg = err.Error()
	}
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 files 计算得出
//
// files 的顺序就是计划顺序（与源文件位置对应），这里不重排。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Files == nil {
		r.Files = []FileResult{}
	}

	var s ReportSummary
	for _, f := range r.Files {
		switch f.Status {
		case FileStatusPlanned:
			s.Planned++
		case FileStatusConverted:
			s.Converted++
		case FileStatusMissing:
			s.Missing++
		case FileStatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// OK 表示 run 整体成功（dry-run 计划成功也算）。
func (r RunReport) OK() bool {
	return r.Status == StatusSucceeded || r.Status == StatusPlanned
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
