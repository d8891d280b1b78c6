package planner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/blend2egg/internal/domain"
	"github.com/John-Robertt/blend2egg/internal/scan"
)

// Input 是规划所需的全部输入（路径均可为相对路径，内部统一转为绝对路径）。
type Input struct {
	// SrcDir 是多个源文件的公共根目录；为空时自动推导。
	// 单个源为目录时忽略该字段（以该目录为根）。
	SrcDir  string
	Sources []string
	Dst     string

	SourceExt string // 默认 scan.SourceExt
	TargetExt string // 例如 ".egg"

	// AppendExt 仅在批量模式生效：m.blend -> m.blend.egg。
	AppendExt bool
}

// Plan 校验输入并生成确定性的转换计划（只做 stat/walk，不做任何写入）。
//
// 校验在收集文件之前完成，任何一条失败都直接返回，不产生部分结果：
// - 每个源都必须存在
// - 多个源时每个都必须是普通文件
// - 单个源时可以是普通文件或目录
func Plan(in Input) (domain.ConversionPlan, error) {
	if in.SourceExt == "" {
		in.SourceExt = scan.SourceExt
	}
	if in.TargetExt == "" {
		return domain.ConversionPlan{}, fmt.Errorf("planner: TargetExt 不能为空")
	}
	if len(in.Sources) == 0 {
		return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeNoSources, "", errors.New("no source paths given"))
	}
	if strings.TrimSpace(in.Dst) == "" {
		return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeDstNotDir, "", errors.New("destination is empty"))
	}

	srcIsDir, err := validateSources(in.Sources)
	if err != nil {
		return domain.ConversionPlan{}, err
	}

	dst, dstIsDir, err := normalizeDst(in.Dst)
	if err != nil {
		return domain.ConversionPlan{}, err
	}

	var (
		srcDir string
		files  []string
	)
	if srcIsDir {
		srcDir, err = filepath.Abs(in.Sources[0])
		if err != nil {
			return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeIOFailed, in.Sources[0], err)
		}
		files, err = scan.ScanSources(srcDir, in.SourceExt)
		if err != nil {
			return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeIOFailed, srcDir, err)
		}
		if len(files) == 0 {
			return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeNoSources, srcDir, fmt.Errorf("no %s files found", in.SourceExt))
		}
	} else {
		files = make([]string, 0, len(in.Sources))
		for _, s := range in.Sources {
			abs, e := filepath.Abs(s)
			if e != nil {
				return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeIOFailed, s, e)
			}
			files = append(files, abs)
		}
		srcDir = strings.TrimSpace(in.SrcDir)
		if srcDir == "" {
			srcDir = CommonDir(files)
		} else if srcDir, err = filepath.Abs(srcDir); err != nil {
			return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeIOFailed, in.SrcDir, err)
		}
	}

	isBatch := len(files) > 1 || dstIsDir
	if isBatch && !dstIsDir {
		return domain.ConversionPlan{}, domain.NewError(domain.ErrCodeDstNotDir, dst,
			errors.New("destination must be a directory if the source is a directory or multiple files"))
	}

	plan := domain.ConversionPlan{
		SrcDir:   srcDir,
		Dst:      dst,
		IsBatch:  isBatch,
		DstIsDir: dstIsDir,
		Files:    files,
		Pairs:    make([]domain.FilePair, 0, len(files)),
	}

	if !isBatch {
		// 单文件：dst 一定是文件路径（目录形态的 dst 已归入批量）。
		plan.Pairs = append(plan.Pairs, domain.FilePair{Src: files[0], Dst: dst})
		return plan, nil
	}

	for _, f := range files {
		out, e := mirror(srcDir, dst, f, in.SourceExt, in.TargetExt, in.AppendExt)
		if e != nil {
			return domain.ConversionPlan{}, e
		}
		plan.Pairs = append(plan.Pairs, domain.FilePair{Src: f, Dst: out})
	}
	return plan, nil
}

func validateSources(sources []string) (srcIsDir bool, err error) {
	multi := len(sources) > 1
	for _, s := range sources {
		fi, e := os.Stat(s)
		if e != nil {
			if errors.Is(e, fs.ErrNotExist) {
				return false, domain.NewError(domain.ErrCodeSourceNotFound, s, errors.New("source does not exist"))
			}
			return false, domain.NewError(domain.ErrCodeIOFailed, s, e)
		}
		if multi {
			if !fi.Mode().IsRegular() {
				return false, domain.NewError(domain.ErrCodeSourceNotFile, s, errors.New("source is not a file"))
			}
			continue
		}
		if !fi.Mode().IsRegular() && !fi.IsDir() {
			return false, domain.NewError(domain.ErrCodeSourceInvalidType, s, errors.New("source must be a file or a directory"))
		}
		srcIsDir = fi.IsDir()
	}
	return srcIsDir, nil
}

// normalizeDst 判断 dst 是否为目录：当且仅当没有扩展名（见 dstExt）。
// 目录形态补齐末尾分隔符；这里不访问文件系统（目录可以尚不存在）。
func normalizeDst(raw string) (string, bool, error) {
	isDir := dstExt(raw) == ""
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", false, domain.NewError(domain.ErrCodeIOFailed, raw, err)
	}
	if isDir && !strings.HasSuffix(abs, string(filepath.Separator)) {
		abs += string(filepath.Separator)
	}
	return abs, isDir, nil
}

// dstExt 返回最后一个路径组件的扩展名。
// 以分隔符结尾的路径没有扩展名；组件开头的点不算扩展名（".", "..", ".exports" 都是目录形态）。
func dstExt(raw string) string {
	if raw == "" || os.IsPathSeparator(raw[len(raw)-1]) {
		return ""
	}
	base := strings.TrimLeft(filepath.Base(raw), ".")
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return base[i:]
}

// mirror 用“相对路径 + 重新拼接”推导目标路径：dstDir/rel(srcDir, src)，再替换扩展名。
func mirror(srcDir, dstDir, src, srcExt, dstExt string, appendExt bool) (string, error) {
	rel, err := filepath.Rel(srcDir, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.NewError(domain.ErrCodeSourceOutsideRoot, src, fmt.Errorf("not under source root %q", srcDir))
	}
	out := filepath.Join(dstDir, rel)
	return withExt(out, srcExt, dstExt, appendExt), nil
}

func withExt(p, srcExt, dstExt string, appendExt bool) string {
	if appendExt {
		return p + dstExt
	}
	if strings.HasSuffix(p, srcExt) {
		return strings.TrimSuffix(p, srcExt) + dstExt
	}
	return strings.TrimSuffix(p, filepath.Ext(p)) + dstExt
}

// CommonDir 返回一组绝对文件路径所在目录的最长公共祖先（按路径组件比较，而非字符串前缀）。
func CommonDir(files []string) string {
	if len(files) == 0 {
		return ""
	}
	common := splitPath(filepath.Dir(files[0]))
	for _, f := range files[1:] {
		parts := splitPath(filepath.Dir(f))
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) == 0 {
		return string(filepath.Separator)
	}
	return filepath.Join(common...)
}

func splitPath(dir string) []string {
	dir = filepath.Clean(dir)
	vol := filepath.VolumeName(dir)
	rest := strings.TrimPrefix(dir[len(vol):], string(filepath.Separator))
	parts := []string{vol + string(filepath.Separator)}
	if rest == "" {
		return parts
	}
	return append(parts, strings.Split(rest, string(filepath.Separator))...)
}
