package tradeopt

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"card-broker/internal/solver"
)

// Request 为一次完整运行的输入。
type Request struct {
	Problem Problem
	Catalog Catalog
}

// Report 为已通过校验的交易建议。
type Report struct {
	Status    solver.Status `json:"status"`
	Objective float64       `json:"objective"`
	Tolerance float64       `json:"tolerance"`
	Agents    [2]Agent      `json:"agents"`
	Trades    []TradeRecord `json:"trades"`
	Flows     []Flow        `json:"flows"`
	Nodes     int           `json:"nodes"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Engine 串联模型构建、求解、提取与校验。
type Engine struct {
	solver solver.Solver
	logger *zap.Logger
}

// NewEngine 创建交易优化引擎。
func NewEngine(s solver.Solver, logger *zap.Logger) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("tradeopt: %w", solver.ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{solver: s, logger: logger}, nil
}

// Run 执行一次 构建 → 求解 → 提取 → 校验。任一步失败均直接返回错误，不返回部分结果。
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	p := req.Problem

	e.logger.Info("开始寻找最优交易",
		zap.String("solver", e.solver.Name()),
		zap.Int("items", len(p.Items)),
		zap.Int("possible_trades", 2*len(p.Items)),
		zap.Float64("tolerance", p.Tolerance),
	)

	outcome, err := Optimize(ctx, e.solver, p)
	if err != nil {
		e.logger.Warn("交易优化失败", zap.Error(err))
		return nil, err
	}

	trades := Extract(outcome.Decisions, p.Prices, req.Catalog)
	if err := Validate(trades, p.Inventory); err != nil {
		e.logger.Error("交易校验失败", zap.Error(err))
		return nil, err
	}

	flows := Summarize(outcome.Agents, trades)
	for _, f := range flows {
		e.logger.Debug("方向汇总",
			zap.String("from", string(f.Giver)),
			zap.String("to", string(f.Receiver)),
			zap.Int("cards", f.Count),
			zap.String("value", f.Value.StringFixed(2)),
		)
	}

	report := &Report{
		Status:    outcome.Status,
		Objective: outcome.Objective,
		Tolerance: p.Tolerance,
		Agents:    outcome.Agents,
		Trades:    trades,
		Flows:     flows,
		Nodes:     outcome.Nodes,
		Elapsed:   time.Since(started),
	}

	e.logger.Info("交易建议已生成",
		zap.Float64("objective", report.Objective),
		zap.Int("trades", len(trades)),
		zap.Int("nodes", report.Nodes),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
