package solver

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	BackendBranchAndBound = "branch-and-bound"
	BackendEnumerate      = "enumerate"
)

// Options 控制求解后端行为。
type Options struct {
	MaxNodes       int
	IntegralityTol float64
}

// New 按名称创建求解后端，未知名称返回 ErrUnavailable。
func New(name string, opts Options, logger *zap.Logger) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendBranchAndBound, "bnb", "":
		return NewBranchAndBound(opts, logger), nil
	case BackendEnumerate:
		return NewEnumerator(), nil
	default:
		return nil, fmt.Errorf("%w: 未知后端 %q", ErrUnavailable, name)
	}
}
