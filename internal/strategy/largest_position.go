package strategy

// LargestPosition 确定性卖出策略：卖出在该类型中市值最大的标的
// 市值相同时取排在前面的
type LargestPosition struct{}

// NewLargestPosition 创建最大持仓策略
func NewLargestPosition() *LargestPosition {
	return &LargestPosition{}
}

// Name 返回策略名称
func (s *LargestPosition) Name() string {
	return PolicyLargest
}

// Choose 选择类型市值最大的候选
func (s *LargestPosition) Choose(assetType string, candidates []Candidate) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].TypeValue() > candidates[best].TypeValue() {
			best = i
		}
	}
	return best
}
