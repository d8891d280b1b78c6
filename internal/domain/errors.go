package domain

import (
	"errors"
	"fmt"
)

const (
	ErrCodeSourceNotFound    = "source_not_found"
	ErrCodeSourceNotFile     = "source_not_file"
	ErrCodeSourceInvalidType = "source_invalid_type"
	ErrCodeSourceOutsideRoot = "source_outside_root"
	ErrCodeNoSources         = "no_sources"
	ErrCodeDstNotDir         = "dst_not_dir"
	ErrCodePipelineUnknown   = "pipeline_unknown"
	ErrCodeSettingsInvalid   = "settings_invalid"
	ErrCodeHostToolNotFound  = "host_tool_not_found"
	ErrCodeHostToolFailed    = "host_tool_failed"
	ErrCodeHostToolTimeout   = "host_tool_timeout"
	ErrCodeOutputMissing     = "output_missing"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigNotFound    = "config_not_found"
)

// Error 是带 error_code 的结构化错误（校验/配置阶段使用，不携带调用栈）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %q: %v", e.Code, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %q", e.Code, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 是 &Error{...} 的简写。
func NewError(code, path string, err error) *Error {
	return &Error{Code: code, Path: path, Err: err}
}

// Code 从 error 链中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
