package solver

import (
	"context"
	"fmt"
	"math"
)

// MaxEnumerateVars 为穷举后端能处理的最大变量数。
const MaxEnumerateVars = 22

// Enumerator 穷举全部 0/1 取值，只适用于小模型，主要用作校验基准。
type Enumerator struct{}

// NewEnumerator 创建穷举求解器。
func NewEnumerator() *Enumerator {
	return &Enumerator{}
}

// Name 返回后端名称。
func (e *Enumerator) Name() string {
	return BackendEnumerate
}

// Solve 求解模型。
func (e *Enumerator) Solve(ctx context.Context, m *Model) (*Solution, error) {
	n := m.NumVars()
	if n > MaxEnumerateVars {
		return &Solution{Status: StatusNotSolved}, fmt.Errorf("%w: %d 个变量超过 %d", ErrModelTooLarge, n, MaxEnumerateVars)
	}

	p := compile(m)
	var (
		best    []float64
		bestObj = math.Inf(-1)
		values  = make([]float64, n)
		total   = 1 << uint(n)
	)

	for mask := 0; mask < total; mask++ {
		if mask&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return &Solution{Status: StatusNotSolved, Nodes: mask}, fmt.Errorf("solver: 求解被中断: %w", err)
			}
		}
		for i := 0; i < n; i++ {
			values[i] = float64((mask >> uint(i)) & 1)
		}
		if !m.Feasible(values, presolveTol) {
			continue
		}
		if obj := p.objective(values); obj > bestObj {
			bestObj = obj
			best = append(make([]float64, 0, n), values...)
		}
	}

	if best == nil {
		return &Solution{Status: StatusInfeasible, Nodes: total}, nil
	}
	return &Solution{
		Status:    StatusOptimal,
		Objective: p.report(bestObj),
		Values:    best,
		Nodes:     total,
	}, nil
}
