package tradeopt

import (
	"context"
	"fmt"

	"card-broker/internal/solver"
)

// Outcome 为一次最优求解的结果。
type Outcome struct {
	Status    solver.Status
	Objective float64
	Agents    [2]Agent
	Decisions Decisions
	Nodes     int
}

// Optimize 构建并求解模型。只有最优解才会返回决策取值，其余状态一律返回 *NotOptimalError。
func Optimize(ctx context.Context, s solver.Solver, p Problem) (*Outcome, error) {
	if s == nil {
		return nil, fmt.Errorf("tradeopt: %w", solver.ErrUnavailable)
	}

	plan, err := BuildModel(p)
	if err != nil {
		return nil, err
	}

	sol, err := s.Solve(ctx, plan.Model)
	if err != nil {
		return nil, fmt.Errorf("tradeopt: 求解失败: %w", err)
	}
	if sol.Status != solver.StatusOptimal {
		return nil, &NotOptimalError{Status: sol.Status}
	}

	return &Outcome{
		Status:    sol.Status,
		Objective: sol.Objective,
		Agents:    plan.Agents,
		Decisions: plan.Decode(sol),
		Nodes:     sol.Nodes,
	}, nil
}
