package data

import (
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
)

// AccountLoader 账户加载器接口
type AccountLoader interface {
	// Load 加载并校验一个账户定义
	Load(path string) (*types.Account, error)

	// Formats 支持的文件扩展名
	Formats() []string
}
