package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	defaultMaxNodes       = 200000
	defaultIntegralityTol = 1e-6
	simplexTol            = 1e-10
	feasibilityTol        = 1e-6
	lpCheckTol            = 1e-6
)

// BranchAndBound 以 LP 松弛（单纯形法）为界，深度优先分支求解二元整数规划。
type BranchAndBound struct {
	maxNodes int
	intTol   float64
	logger   *zap.Logger
}

// NewBranchAndBound 创建分支定界求解器。
func NewBranchAndBound(opts Options, logger *zap.Logger) *BranchAndBound {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	intTol := opts.IntegralityTol
	if intTol <= 0 {
		intTol = defaultIntegralityTol
	}
	return &BranchAndBound{
		maxNodes: maxNodes,
		intTol:   intTol,
		logger:   logger,
	}
}

// Name 返回后端名称。
func (b *BranchAndBound) Name() string {
	return BackendBranchAndBound
}

type relaxation struct {
	feasible  bool
	unbounded bool
	objective float64
	values    []float64
}

// Solve 求解模型。节点数达到上限时返回当前最好解（StatusFeasible）或 StatusNotSolved。
// 单个节点的 LP 失败不会中止求解，该节点退化为无界分支。
func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	p := compile(m)
	if p.infeas {
		return &Solution{Status: StatusInfeasible}, nil
	}

	root := make([]int8, p.n)
	for i := range root {
		root[i] = -1
		if p.lower[i] == p.upper[i] {
			root[i] = int8(p.lower[i])
		}
	}

	var (
		best      []float64
		bestObj   = math.Inf(-1)
		nodes     int
		lpFails   int
		limitHit  bool
		stack     = [][]int8{root}
		cancelErr error
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		if nodes >= b.maxNodes {
			limitHit = true
			break
		}

		fix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		res, err := b.relax(p, fix)
		if err != nil {
			// 松弛无法求解时没有上界可用，只能继续细分。
			lpFails++
			b.logger.Debug("LP 松弛求解失败，直接分支", zap.Int("node", nodes), zap.Error(err))
			if i := fallbackBranch(nil, fix); i >= 0 {
				stack = append(stack, split(fix, i)...)
			}
			continue
		}
		if res.unbounded {
			return &Solution{Status: StatusUnbounded, Nodes: nodes}, nil
		}
		if !res.feasible {
			continue
		}
		if best != nil && res.objective <= bestObj+gap(bestObj) {
			continue
		}

		branch := b.mostFractional(res.values, fix)
		if branch >= 0 {
			stack = append(stack, split(fix, branch)...)
			continue
		}

		values := make([]float64, p.n)
		for i, v := range res.values {
			values[i] = math.Round(v)
		}
		if m.Feasible(values, feasibilityTol) {
			obj := p.objective(values)
			if best == nil || obj > bestObj {
				best, bestObj = values, obj
			}
			if res.objective <= obj+gap(obj) {
				continue
			}
		}
		// 松弛解只是近似整数：取整后越界，或与松弛上界仍有差距。
		if i := fallbackBranch(res.values, fix); i >= 0 {
			stack = append(stack, split(fix, i)...)
		}
	}

	sol := &Solution{Nodes: nodes}
	switch {
	case best != nil && !limitHit && cancelErr == nil:
		sol.Status = StatusOptimal
	case best != nil:
		sol.Status = StatusFeasible
	case limitHit || cancelErr != nil:
		sol.Status = StatusNotSolved
	default:
		sol.Status = StatusInfeasible
	}
	if best != nil {
		sol.Values = best
		sol.Objective = p.report(bestObj)
	}

	b.logger.Debug("分支定界求解结束",
		zap.String("model", m.Name()),
		zap.String("status", string(sol.Status)),
		zap.Int("nodes", nodes),
		zap.Int("lp_failures", lpFails),
		zap.Float64("objective", sol.Objective),
	)

	if cancelErr != nil {
		return sol, fmt.Errorf("solver: 求解被中断: %w", cancelErr)
	}
	return sol, nil
}

func (b *BranchAndBound) mostFractional(values []float64, fix []int8) int {
	branch := -1
	worst := b.intTol
	for i, v := range values {
		if fix[i] >= 0 {
			continue
		}
		frac := v - math.Floor(v)
		dist := math.Min(frac, 1-frac)
		if dist > worst {
			worst = dist
			branch = i
		}
	}
	return branch
}

// fallbackBranch 返回距整数最远的自由变量，values 为空时取第一个自由变量；没有自由变量时返回 -1。
func fallbackBranch(values []float64, fix []int8) int {
	branch, worst := -1, -1.0
	for i, f := range fix {
		if f >= 0 {
			continue
		}
		dist := 0.0
		if values != nil {
			frac := values[i] - math.Floor(values[i])
			dist = math.Min(frac, 1-frac)
		}
		if dist > worst {
			worst, branch = dist, i
		}
	}
	return branch
}

// split 生成固定 i=0 与 i=1 的两个子节点，取 1 的子节点先出栈。
func split(fix []int8, i int) [][]int8 {
	zero := append([]int8(nil), fix...)
	zero[i] = 0
	one := append([]int8(nil), fix...)
	one[i] = 1
	return [][]int8{zero, one}
}

// relax 求解给定固定变量下的 LP 松弛：固定变量代入右端项，自由变量取值于 [0,1]。
func (b *BranchAndBound) relax(p *program, fix []int8) (relaxation, error) {
	values := make([]float64, p.n)
	col := make([]int, p.n)
	free := make([]int, 0, p.n)
	constant := 0.0
	for i, f := range fix {
		col[i] = -1
		if f >= 0 {
			values[i] = float64(f)
			constant += p.obj[i] * float64(f)
			continue
		}
		col[i] = len(free)
		free = append(free, i)
	}

	rows := make([]row, 0, len(p.rows)+len(free))
	for _, r := range p.rows {
		rhs := r.rhs
		cols := make([]int, 0, len(r.cols))
		vals := make([]float64, 0, len(r.cols))
		for k, i := range r.cols {
			if fix[i] >= 0 {
				rhs -= r.vals[k] * float64(fix[i])
				continue
			}
			cols = append(cols, col[i])
			vals = append(vals, r.vals[k])
		}
		if len(cols) == 0 {
			if rhs < -feasibilityTol {
				return relaxation{}, nil
			}
			continue
		}
		rows = append(rows, row{name: r.name, cols: cols, vals: vals, rhs: rhs})
	}

	if len(free) == 0 {
		return relaxation{feasible: true, objective: constant, values: values}, nil
	}

	res, err := solveLP(p, rows, free, constant, values, false)
	if err != nil {
		res, err = solveLP(p, rows, free, constant, values, true)
	}
	return res, err
}

// solveLP 对行做等比缩放后调用单纯形法。explicitBounds 为 true 时为每个自由变量显式加 x <= 1 行。
// 单纯形返回的点若不满足约束，视为求解失败。
func solveLP(p *program, rows []row, free []int, constant float64, values []float64, explicitBounds bool) (relaxation, error) {
	k := len(free)
	capped := make([]bool, k)
	if !explicitBounds {
		capped = impliedUpperBounds(rows, k)
	}
	all := rows[:len(rows):len(rows)]
	for j := 0; j < k; j++ {
		if !capped[j] {
			all = append(all, row{cols: []int{j}, vals: []float64{1}, rhs: 1})
		}
	}

	nRows := len(all)
	a := mat.NewDense(nRows, k+nRows, nil)
	rhs := make([]float64, nRows)
	scales := make([]float64, nRows)
	for r, rw := range all {
		scale := 1 / maxAbs(rw.vals)
		sign := 1.0
		if rw.rhs < 0 {
			sign = -1
		}
		for idx, c := range rw.cols {
			a.Set(r, c, sign*scale*rw.vals[idx])
		}
		a.Set(r, k+r, sign)
		rhs[r] = sign * scale * rw.rhs
		scales[r] = scale
	}
	c := make([]float64, k+nRows)
	for j, i := range free {
		c[j] = -p.obj[i]
	}

	optF, optX, err := lp.Simplex(c, a, rhs, simplexTol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return relaxation{}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return relaxation{unbounded: true}, nil
	case err != nil:
		return relaxation{}, fmt.Errorf("solver: LP 松弛求解失败: %w", err)
	}

	for r, rw := range all {
		lhs := 0.0
		for idx, j := range rw.cols {
			lhs += rw.vals[idx] * optX[j]
		}
		if (lhs-rw.rhs)*scales[r] > lpCheckTol {
			return relaxation{}, fmt.Errorf("solver: LP 松弛解违反约束 %q", rw.name)
		}
	}

	out := append([]float64(nil), values...)
	for j, i := range free {
		out[i] = clamp01(optX[j])
	}
	return relaxation{feasible: true, objective: constant - optF, values: out}, nil
}

func maxAbs(vals []float64) float64 {
	m := 0.0
	for _, v := range vals {
		m = math.Max(m, math.Abs(v))
	}
	if m == 0 {
		return 1
	}
	return m
}

// impliedUpperBounds 标记已被某条全正系数约束限制在 1 以内的列，这些列无需再加 x <= 1 行。
func impliedUpperBounds(rows []row, n int) []bool {
	capped := make([]bool, n)
	for _, rw := range rows {
		if rw.rhs < 0 {
			continue
		}
		positive := true
		for _, v := range rw.vals {
			if v <= 0 {
				positive = false
				break
			}
		}
		if !positive {
			continue
		}
		for idx, c := range rw.cols {
			if rw.rhs <= rw.vals[idx]*(1+feasibilityTol) {
				capped[c] = true
			}
		}
	}
	return capped
}

func gap(best float64) float64 {
	return 1e-7 * math.Max(1, math.Abs(best))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
