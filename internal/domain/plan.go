package domain

// FilePair 描述一次 .blend -> .egg 的转换（只描述 src/dst，不做任何写入）。
type FilePair struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// ConversionPlan 是由 src/dst 参数推导出的转换计划（派生数据，不落盘）。
//
// 不变量（实现必须遵守）：
// - len(Pairs) == len(Files)，且按下标一一对应
// - Files 均为 clean + absolute
// - DstIsDir 为 true 时 Dst 以路径分隔符结尾
type ConversionPlan struct {
	SrcDir   string
	Dst      string
	IsBatch  bool
	DstIsDir bool

	Files []string
	Pairs []FilePair
}

// Outputs 返回与 Files 位置对应的目标路径列表。
func (p ConversionPlan) Outputs() []string {
	out := make([]string, len(p.Pairs))
	for i := range p.Pairs {
		out[i] = p.Pairs[i].Dst
	}
	return out
}
