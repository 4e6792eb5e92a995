package solver

import (
	"math"
	"sort"
)

const presolveTol = 1e-9

// row 为规范化后的稀疏约束 sum(vals·x[cols]) <= rhs。
type row struct {
	name string
	cols []int
	vals []float64
	rhs  float64
}

// program 为模型的内部形式：目标一律取最大化，约束一律为 <=。
type program struct {
	n      int
	obj    []float64
	sense  Sense
	rows   []row
	lower  []int
	upper  []int
	infeas bool
}

func compile(m *Model) *program {
	p := &program{
		n:     m.NumVars(),
		obj:   make([]float64, m.NumVars()),
		lower: make([]int, m.NumVars()),
		upper: make([]int, m.NumVars()),
	}
	for i := range p.upper {
		p.upper[i] = 1
	}

	objective, sense := m.Objective()
	p.sense = sense
	sign := 1.0
	if sense == Minimize {
		sign = -1
	}
	for _, t := range objective {
		p.obj[t.Var.index] += sign * t.Coef
	}

	for _, c := range m.Constraints() {
		cols, vals := collapse(c.Expr)
		switch c.Op {
		case LessEq:
			p.addRow(c.Name, cols, vals, c.RHS)
		case GreaterEq:
			p.addRow(c.Name, cols, negate(vals), -c.RHS)
		case Equal:
			p.addRow(c.Name, cols, vals, c.RHS)
			p.addRow(c.Name, cols, negate(vals), -c.RHS)
		}
	}

	for i := 0; i < p.n; i++ {
		if p.lower[i] > p.upper[i] {
			p.infeas = true
		}
	}
	return p
}

// addRow 将空约束与单变量约束直接化为可行性检查或变量上下界。
func (p *program) addRow(name string, cols []int, vals []float64, rhs float64) {
	switch len(cols) {
	case 0:
		if rhs < -presolveTol {
			p.infeas = true
		}
	case 1:
		i, a := cols[0], vals[0]
		bound := rhs / a
		if a > 0 {
			if ub := int(math.Floor(bound + presolveTol)); ub < p.upper[i] {
				p.upper[i] = ub
			}
		} else {
			if lb := int(math.Ceil(bound - presolveTol)); lb > p.lower[i] {
				p.lower[i] = lb
			}
		}
	default:
		p.rows = append(p.rows, row{name: name, cols: cols, vals: vals, rhs: rhs})
	}
}

func collapse(expr Expr) ([]int, []float64) {
	merged := make(map[int]float64, len(expr))
	for _, t := range expr {
		merged[t.Var.index] += t.Coef
	}
	cols := make([]int, 0, len(merged))
	for idx, coef := range merged {
		if coef != 0 {
			cols = append(cols, idx)
		}
	}
	sort.Ints(cols)
	vals := make([]float64, len(cols))
	for i, idx := range cols {
		vals[i] = merged[idx]
	}
	return cols, vals
}

func negate(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = -v
	}
	return out
}

// objective 以最大化口径计算目标值。
func (p *program) objective(values []float64) float64 {
	var total float64
	for i, c := range p.obj {
		total += c * values[i]
	}
	return total
}

// report 将内部目标值换算回模型原始方向。
func (p *program) report(v float64) float64 {
	if p.sense == Minimize {
		return -v
	}
	return v
}
