// Package history 持久化优化运行及其交易建议，并提供只读查询。
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"card-broker/internal/store"
	"card-broker/internal/tradeopt"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS optimization_runs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	agents TEXT NOT NULL,
	tolerance REAL NOT NULL,
	status TEXT NOT NULL,
	objective REAL NOT NULL DEFAULT 0,
	trade_count INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_optimization_runs_created ON optimization_runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS trade_records (
	run_id TEXT NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
	giver TEXT NOT NULL,
	receiver TEXT NOT NULL,
	item TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	set_id TEXT NOT NULL DEFAULT '',
	unit_price TEXT,
	PRIMARY KEY (run_id, giver, receiver, item)
)`,
}

// Service 负责写入与查询运行历史。
type Service struct {
	store  *store.Store
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService 初始化历史服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.New("history: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := st.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("history: 初始化表失败: %w", err)
	}

	return &Service{
		store:  st,
		db:     st.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordRun 在一个事务中写入运行概要与全部交易记录。
// report 为空时按 runErr 记录一次失败运行。
func (s *Service) RecordRun(ctx context.Context, req tradeopt.Request, report *tradeopt.Report, runErr error) (*Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Tolerance: req.Problem.Tolerance,
	}

	var trades []tradeopt.TradeRecord
	if report != nil {
		run.Agents = joinAgents(report.Agents[:])
		run.Status = string(report.Status)
		run.Objective = report.Objective
		run.TradeCount = len(report.Trades)
		trades = report.Trades
	} else {
		run.Status = FailureStatus(runErr)
		if agents, err := req.Problem.ResolveParticipants(); err == nil {
			run.Agents = joinAgents(agents[:])
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
	}

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO optimization_runs
	(id, created_at, agents, tolerance, status, objective, trade_count, error)
	VALUES (:id, :created_at, :agents, :tolerance, :status, :objective, :trade_count, :error)`, run); err != nil {
			return fmt.Errorf("history: 写入运行记录失败: %w", err)
		}
		for _, r := range trades {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO trade_records
	(run_id, giver, receiver, item, name, set_id, unit_price)
	VALUES (:run_id, :giver, :receiver, :item, :name, :set_id, :unit_price)`, tradeFromRecord(run.ID, r)); err != nil {
				return fmt.Errorf("history: 写入交易记录失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("运行记录已保存",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("trades", run.TradeCount),
	)
	return &run, nil
}

// ListRuns 按时间倒序返回最近的运行记录。
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs := make([]Run, 0, limit)
	err := s.db.SelectContext(ctx, &runs, `SELECT id, created_at, agents, tolerance, status, objective, trade_count, error
	FROM optimization_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: 查询运行记录失败: %w", err)
	}
	return runs, nil
}

// GetRun 返回单次运行概要。
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT id, created_at, agents, tolerance, status, objective, trade_count, error
	FROM optimization_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: 查询运行记录失败: %w", err)
	}
	return &run, nil
}

// Trades 返回某次运行的全部交易记录，顺序与引擎输出一致。
func (s *Service) Trades(ctx context.Context, runID string) ([]Trade, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	trades := make([]Trade, 0)
	err := s.db.SelectContext(ctx, &trades, `SELECT run_id, giver, receiver, item, name, set_id, unit_price
	FROM trade_records WHERE run_id = ? ORDER BY giver, receiver, item`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: 查询交易记录失败: %w", err)
	}
	return trades, nil
}

// FailureStatus 将运行错误归类为可持久化的状态：非最优时为求解器状态，
// 校验失败为 rejected，其余为 failed。
func FailureStatus(err error) string {
	var notOptimal *tradeopt.NotOptimalError
	switch {
	case errors.As(err, &notOptimal):
		return string(notOptimal.Status)
	case errors.Is(err, tradeopt.ErrValidation):
		return StatusRejected
	default:
		return StatusFailed
	}
}

func joinAgents(agents []tradeopt.Agent) string {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			names = append(names, string(a))
		}
	}
	return strings.Join(names, ",")
}
