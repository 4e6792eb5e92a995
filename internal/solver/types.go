package solver

import (
	"context"
	"errors"
)

// Status 描述一次求解的终止状态。
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusAbnormal   Status = "abnormal"
	StatusNotSolved  Status = "not_solved"
)

var (
	// ErrUnavailable 表示没有可用的求解后端。
	ErrUnavailable = errors.New("solver: 求解器不可用")
	// ErrModelTooLarge 表示模型超出后端能力范围。
	ErrModelTooLarge = errors.New("solver: 模型规模超出后端限制")
)

// Solution 为求解结果。Values 按变量序号存放取值。
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Value 返回变量取值；无解时为 0。
func (s *Solution) Value(v Var) float64 {
	if s == nil || v.index >= len(s.Values) {
		return 0
	}
	return s.Values[v.index]
}

// Solver 为阻塞式求解接口。
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
