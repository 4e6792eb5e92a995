package solver

import (
	"fmt"
	"math"
)

// Var 为模型中的二元决策变量句柄。
type Var struct {
	index int
}

// Index 返回变量在模型中的序号。
func (v Var) Index() int {
	return v.index
}

// Term 表示线性表达式中的单项 coef·var。
type Term struct {
	Var  Var
	Coef float64
}

// Expr 为线性表达式，同一变量可出现多次，求值时累加。
type Expr []Term

// Sum 构造系数均为 1 的表达式。
func Sum(vars ...Var) Expr {
	expr := make(Expr, 0, len(vars))
	for _, v := range vars {
		expr = append(expr, Term{Var: v, Coef: 1})
	}
	return expr
}

// Plus 返回两个表达式之和，不修改原表达式。
func (e Expr) Plus(other Expr) Expr {
	out := make(Expr, 0, len(e)+len(other))
	out = append(out, e...)
	return append(out, other...)
}

// Scale 返回乘以常数后的表达式。
func (e Expr) Scale(k float64) Expr {
	out := make(Expr, len(e))
	for i, t := range e {
		out[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return out
}

// Eval 按给定变量取值计算表达式。
func (e Expr) Eval(values []float64) float64 {
	var total float64
	for _, t := range e {
		total += t.Coef * values[t.Var.index]
	}
	return total
}

// Op 为约束比较符。
type Op string

const (
	LessEq    Op = "<="
	GreaterEq Op = ">="
	Equal     Op = "=="
)

// Constraint 描述 expr op rhs。
type Constraint struct {
	Name string
	Expr Expr
	Op   Op
	RHS  float64
}

// Sense 为优化方向。
type Sense string

const (
	Maximize Sense = "maximize"
	Minimize Sense = "minimize"
)

// Model 为二元整数规划模型，只负责收集变量、目标与约束。
type Model struct {
	name        string
	vars        []string
	constraints []Constraint
	objective   Expr
	sense       Sense
}

// NewModel 创建空模型。
func NewModel(name string) *Model {
	return &Model{name: name, sense: Maximize}
}

// Name 返回模型名称。
func (m *Model) Name() string {
	return m.name
}

// BoolVar 新建一个取值于 {0,1} 的变量。
func (m *Model) BoolVar(name string) Var {
	m.vars = append(m.vars, name)
	return Var{index: len(m.vars) - 1}
}

// NumVars 返回变量数量。
func (m *Model) NumVars() int {
	return len(m.vars)
}

// VarName 返回变量名称。
func (m *Model) VarName(v Var) string {
	return m.vars[v.index]
}

// AddConstraint 添加线性约束。
func (m *Model) AddConstraint(name string, expr Expr, op Op, rhs float64) error {
	switch op {
	case LessEq, GreaterEq, Equal:
	default:
		return fmt.Errorf("solver: 约束 %q 使用了未知比较符 %q", name, op)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("solver: 约束 %q 右端项无效: %v", name, rhs)
	}
	for _, t := range expr {
		if t.Var.index < 0 || t.Var.index >= len(m.vars) {
			return fmt.Errorf("solver: 约束 %q 引用了不属于模型的变量", name)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("solver: 约束 %q 系数无效: %v", name, t.Coef)
		}
	}
	m.constraints = append(m.constraints, Constraint{Name: name, Expr: expr, Op: op, RHS: rhs})
	return nil
}

// Constraints 返回已添加的约束。
func (m *Model) Constraints() []Constraint {
	return m.constraints
}

// Maximize 设置最大化目标。
func (m *Model) Maximize(expr Expr) {
	m.objective = expr
	m.sense = Maximize
}

// Minimize 设置最小化目标。
func (m *Model) Minimize(expr Expr) {
	m.objective = expr
	m.sense = Minimize
}

// Objective 返回目标表达式与方向。
func (m *Model) Objective() (Expr, Sense) {
	return m.objective, m.sense
}

// Feasible 检查给定取值是否满足全部约束。
func (m *Model) Feasible(values []float64, tol float64) bool {
	for _, c := range m.constraints {
		lhs := c.Expr.Eval(values)
		switch c.Op {
		case LessEq:
			if lhs > c.RHS+tol {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-tol {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}
