package strategy

import "math/rand"

// Random 随机卖出策略 (不加权)，种子固定时结果可复现
type Random struct {
	seed int64
	rng  *rand.Rand
}

// NewRandom 创建随机策略
func NewRandom(seed int64) *Random {
	return &Random{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Name 返回策略名称
func (s *Random) Name() string {
	return PolicyRandom
}

// Choose 等概率选择一个候选
func (s *Random) Choose(assetType string, candidates []Candidate) int {
	return s.rng.Intn(len(candidates))
}

// Seed 返回种子
func (s *Random) Seed() int64 {
	return s.seed
}
