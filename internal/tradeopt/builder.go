package tradeopt

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"card-broker/internal/solver"
)

// Plan 为构建完成、尚未求解的模型及决策变量映射。
type Plan struct {
	Model     *solver.Model
	Agents    [2]Agent
	Items     []Item
	Decisions map[DecisionKey]solver.Var

	keys []DecisionKey
}

// Keys 按创建顺序返回全部决策键。
func (p *Plan) Keys() []DecisionKey {
	return append([]DecisionKey(nil), p.keys...)
}

// Decode 将求解结果映射回决策键，保留取 0 的变量。
func (p *Plan) Decode(sol *solver.Solution) Decisions {
	decisions := make(Decisions, len(p.keys))
	for _, key := range p.keys {
		decisions[key] = sol.Value(p.Decisions[key])
	}
	return decisions
}

// Validate 检查输入表取值，所有问题一并返回。
func (p Problem) Validate() error {
	var err error

	if !validNonNegative(p.Tolerance) || p.Tolerance > 1 {
		err = multierr.Append(err, fmt.Errorf("%w: tolerance 必须位于[0,1]，当前 %v", ErrInvalidProblem, p.Tolerance))
	}
	if !validNonNegative(p.DefaultPrice) {
		err = multierr.Append(err, fmt.Errorf("%w: default_price 不能为负，当前 %v", ErrInvalidProblem, p.DefaultPrice))
	}
	for item, price := range p.Prices {
		if !validNonNegative(price) {
			err = multierr.Append(err, fmt.Errorf("%w: 物品 %s 价格无效 %v", ErrInvalidProblem, item, price))
		}
	}
	for key, qty := range p.Inventory {
		if qty < 0 {
			err = multierr.Append(err, fmt.Errorf("%w: %s 持有 %s 数量为负 %d", ErrInvalidProblem, key.Agent, key.Item, qty))
		}
	}

	return err
}

// ResolveParticipants 返回按字典序排列的两个交易方。
func (p Problem) ResolveParticipants() ([2]Agent, error) {
	var agents [2]Agent

	seen := make(map[Agent]struct{})
	for key := range p.Inventory {
		seen[key.Agent] = struct{}{}
	}

	if len(p.Participants) > 0 {
		declared := make(map[Agent]struct{}, len(p.Participants))
		for _, a := range p.Participants {
			if a == "" {
				return agents, fmt.Errorf("%w: 交易方标识不能为空", ErrParticipants)
			}
			declared[a] = struct{}{}
		}
		if len(p.Participants) != 2 || len(declared) != 2 {
			return agents, fmt.Errorf("%w: 指定了 %d 个交易方", ErrParticipants, len(declared))
		}
		for a := range seen {
			if _, ok := declared[a]; !ok {
				return agents, fmt.Errorf("%w: 库存中出现未声明的交易方 %q", ErrParticipants, a)
			}
		}
		seen = declared
	}

	if len(seen) != 2 {
		return agents, fmt.Errorf("%w: 库存中有 %d 个交易方", ErrParticipants, len(seen))
	}

	list := make([]Agent, 0, 2)
	for a := range seen {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	copy(agents[:], list)
	return agents, nil
}

// BuildModel 构建最大化交换价值的二元整数规划：
// 每个 (给出方, 接收方, 物品) 一个变量，约束为价值公平、保留一件库存、单向流动与单次接收。
func BuildModel(p Problem) (*Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	agents, err := p.ResolveParticipants()
	if err != nil {
		return nil, err
	}

	items := uniqueItems(p.Items)
	model := solver.NewModel("trade-distribution")
	plan := &Plan{
		Model:     model,
		Agents:    agents,
		Items:     items,
		Decisions: make(map[DecisionKey]solver.Var, 2*len(items)),
		keys:      make([]DecisionKey, 0, 2*len(items)),
	}

	for _, giver := range agents {
		for _, receiver := range agents {
			if giver == receiver {
				continue
			}
			for _, item := range items {
				key := DecisionKey{Giver: giver, Receiver: receiver, Item: item}
				plan.Decisions[key] = model.BoolVar(fmt.Sprintf("decisions[%s,%s,%s]", giver, receiver, item))
				plan.keys = append(plan.keys, key)
			}
		}
	}

	objective := make(solver.Expr, 0, len(plan.keys))
	for _, key := range plan.keys {
		objective = append(objective, solver.Term{Var: plan.Decisions[key], Coef: p.price(key.Item)})
	}
	model.Maximize(objective)

	var buildErr error
	add := func(name string, expr solver.Expr, op solver.Op, rhs float64) {
		buildErr = multierr.Append(buildErr, model.AddConstraint(name, expr, op, rhs))
	}

	a, b := agents[0], agents[1]
	ab, ba := plan.flow(p, a, b), plan.flow(p, b, a)
	keep := 1 - p.Tolerance/2
	add("fairness["+string(a)+"]", ab.Plus(ba.Scale(-keep)), solver.GreaterEq, 0)
	add("fairness["+string(b)+"]", ba.Plus(ab.Scale(-keep)), solver.GreaterEq, 0)

	for _, item := range items {
		for _, giver := range agents {
			headroom := p.Inventory.Quantity(giver, item) - 1
			if headroom < 0 {
				headroom = 0
			}
			add(fmt.Sprintf("supply[%s,%s]", giver, item), plan.given(giver, item), solver.LessEq, float64(headroom))
		}

		add(fmt.Sprintf("direction[%s]", item), plan.given(a, item).Plus(plan.given(b, item)), solver.LessEq, 1)

		for _, receiver := range agents {
			add(fmt.Sprintf("receipt[%s,%s]", receiver, item), plan.received(receiver, item), solver.LessEq, 1)
		}
	}

	if buildErr != nil {
		return nil, errors.Join(ErrInvalidProblem, buildErr)
	}
	return plan, nil
}

// flow 为 giver → receiver 方向的交换价值表达式。
func (p *Plan) flow(problem Problem, giver, receiver Agent) solver.Expr {
	expr := make(solver.Expr, 0, len(p.Items))
	for _, item := range p.Items {
		v := p.Decisions[DecisionKey{Giver: giver, Receiver: receiver, Item: item}]
		expr = append(expr, solver.Term{Var: v, Coef: problem.price(item)})
	}
	return expr
}

func (p *Plan) given(giver Agent, item Item) solver.Expr {
	vars := make([]solver.Var, 0, 1)
	for _, receiver := range p.Agents {
		if receiver == giver {
			continue
		}
		vars = append(vars, p.Decisions[DecisionKey{Giver: giver, Receiver: receiver, Item: item}])
	}
	return solver.Sum(vars...)
}

func (p *Plan) received(receiver Agent, item Item) solver.Expr {
	vars := make([]solver.Var, 0, 1)
	for _, giver := range p.Agents {
		if giver == receiver {
			continue
		}
		vars = append(vars, p.Decisions[DecisionKey{Giver: giver, Receiver: receiver, Item: item}])
	}
	return solver.Sum(vars...)
}

func uniqueItems(items []Item) []Item {
	seen := make(map[Item]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
