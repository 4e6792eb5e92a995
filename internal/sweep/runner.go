// Package sweep 在一组递增的公平容差上重复运行交易优化。
// 引擎本身从不放宽约束，是否以更宽松的容差重试由调用方决定。
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"card-broker/internal/history"
	"card-broker/internal/solver"
	"card-broker/internal/tradeopt"
)

// Optimizer 执行单次优化，通常为 *tradeopt.Engine。
type Optimizer interface {
	Run(ctx context.Context, req tradeopt.Request) (*tradeopt.Report, error)
}

// Recorder 持久化每次运行，可为空。
type Recorder interface {
	RecordRun(ctx context.Context, req tradeopt.Request, report *tradeopt.Report, runErr error) (*history.Run, error)
}

// Config 定义扫描参数。
type Config struct {
	Tolerances  []float64 // 待尝试的容差，运行前升序去重
	StopAtFirst bool      // 找到首个产生交易的容差后停止
}

func (c *Config) normalize() Config {
	cfg := *c
	seen := make(map[float64]struct{}, len(cfg.Tolerances))
	tolerances := make([]float64, 0, len(cfg.Tolerances))
	for _, t := range cfg.Tolerances {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tolerances = append(tolerances, t)
	}
	sort.Float64s(tolerances)
	cfg.Tolerances = tolerances
	return cfg
}

// Row 为单个容差下的运行结果。
type Row struct {
	Tolerance float64         `json:"tolerance"`
	Status    string          `json:"status"`
	Objective float64         `json:"objective"`
	Trades    int             `json:"trades"`
	Imbalance decimal.Decimal `json:"imbalance"`
	RunID     string          `json:"run_id,omitempty"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
}

// Result 汇总整个扫描。
type Result struct {
	Rows []Row `json:"rows"`
	// Best 为目标值最高的成功行，并列时取容差更小者；没有成功行时为 -1。
	Best int `json:"best"`
	// FirstWithTrades 为首个产生交易的行，没有时为 -1。
	FirstWithTrades int `json:"first_with_trades"`
}

// Runner 驱动容差扫描。
type Runner struct {
	cfg      Config
	engine   Optimizer
	recorder Recorder
	logger   *zap.Logger
}

// NewRunner 构建扫描器。recorder 可为空。
func NewRunner(cfg Config, engine Optimizer, recorder Recorder, logger *zap.Logger) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("sweep: %w", solver.ErrUnavailable)
	}
	cfg = cfg.normalize()
	if len(cfg.Tolerances) == 0 {
		return nil, errors.New("sweep: 至少需要一个容差")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, engine: engine, recorder: recorder, logger: logger}, nil
}

// Run 按升序容差依次运行。单个容差失败只记录在对应行中；
// 交易方配置错误、求解器不可用或上下文取消会中止整个扫描。
func (r *Runner) Run(ctx context.Context, req tradeopt.Request) (Result, error) {
	result := Result{Best: -1, FirstWithTrades: -1}

	for _, tol := range r.cfg.Tolerances {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		attempt := req
		attempt.Problem.Tolerance = tol

		report, err := r.engine.Run(ctx, attempt)
		if err != nil && fatal(ctx, err) {
			return result, err
		}

		row := newRow(tol, report, err)
		if r.recorder != nil {
			run, recErr := r.recorder.RecordRun(ctx, attempt, report, err)
			if recErr != nil {
				r.logger.Warn("保存扫描运行失败", zap.Float64("tolerance", tol), zap.Error(recErr))
			} else {
				row.RunID = run.ID
			}
		}

		result.Rows = append(result.Rows, row)
		idx := len(result.Rows) - 1
		if row.Err == nil {
			if result.Best < 0 || row.Objective > result.Rows[result.Best].Objective {
				result.Best = idx
			}
			if row.Trades > 0 && result.FirstWithTrades < 0 {
				result.FirstWithTrades = idx
			}
		}

		r.logger.Info("容差扫描进度",
			zap.Float64("tolerance", tol),
			zap.String("status", row.Status),
			zap.Float64("objective", row.Objective),
			zap.Int("trades", row.Trades),
		)

		if r.cfg.StopAtFirst && result.FirstWithTrades >= 0 {
			break
		}
	}

	return result, nil
}

func newRow(tol float64, report *tradeopt.Report, err error) Row {
	row := Row{Tolerance: tol}
	if err != nil {
		row.Err = err
		row.Error = err.Error()
		row.Status = history.FailureStatus(err)
		return row
	}

	row.Status = string(report.Status)
	row.Objective = report.Objective
	row.Trades = len(report.Trades)
	row.Imbalance = tradeopt.Imbalance(report.Flows)
	return row
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, tradeopt.ErrParticipants) ||
		errors.Is(err, solver.ErrUnavailable)
}
