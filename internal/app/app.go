package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"card-broker/internal/config"
	"card-broker/internal/dataset"
	"card-broker/internal/history"
	"card-broker/internal/solver"
	"card-broker/internal/store"
	"card-broker/internal/sweep"
	"card-broker/internal/tradeopt"
)

// App 聚合核心依赖并驱动各个命令。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	history *history.Service
	loader  *dataset.Loader
}

// Inputs 指定一次运行的输入文件。
type Inputs struct {
	Prices      string
	Inventories map[tradeopt.Agent]string
}

// Dataset 为加载完成的一次运行输入及持仓概览。
type Dataset struct {
	Request  tradeopt.Request
	Holdings []dataset.HoldingSummary
}

// New 创建 App 实例并初始化历史表。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *store.Store) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: 配置不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hist, err := history.NewService(ctx, st, logger.Named("history"))
	if err != nil {
		return nil, err
	}

	invDelim, priceDelim := cfg.Input.Delimiters()
	loader := dataset.NewLoader(dataset.Options{
		InventoryDelimiter: invDelim,
		PriceDelimiter:     priceDelim,
		SetAliases:         cfg.Input.SetAliases,
	}, logger.Named("dataset"))

	return &App{
		cfg:     cfg,
		logger:  logger,
		history: hist,
		loader:  loader,
	}, nil
}

// Load 并发读取价格表与库存文件，组装成优化请求。
func (a *App) Load(ctx context.Context, in Inputs) (*Dataset, error) {
	if in.Prices == "" {
		return nil, errors.New("app: 未指定价格文件")
	}
	if len(in.Inventories) != 2 {
		return nil, fmt.Errorf("app: 需要恰好两个库存文件，实际为 %d 个", len(in.Inventories))
	}

	var (
		prices       tradeopt.PriceTable
		priceCatalog tradeopt.Catalog
		inventory    tradeopt.Inventory
		invCatalog   tradeopt.Catalog
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		prices, priceCatalog, err = a.loader.LoadPrices(in.Prices)
		return err
	})
	group.Go(func() error {
		var err error
		inventory, invCatalog, err = a.loader.LoadInventories(groupCtx, in.Inventories)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	participants := a.participants(in)
	problem := tradeopt.Problem{
		Items:        dataset.Tradable(prices, inventory),
		Prices:       prices,
		DefaultPrice: a.cfg.Optimizer.DefaultPrice,
		Inventory:    inventory,
		Tolerance:    a.cfg.Optimizer.Tolerance,
		Participants: participants,
	}

	a.logger.Info("输入已加载",
		zap.Int("prices", len(prices)),
		zap.Int("holdings", len(inventory)),
		zap.Int("tradable_items", len(problem.Items)),
	)

	return &Dataset{
		Request: tradeopt.Request{
			Problem: problem,
			Catalog: dataset.MergeCatalogs(invCatalog, priceCatalog),
		},
		Holdings: dataset.Holdings(prices, inventory),
	}, nil
}

// Suggest 以给定容差运行一次优化并记录到历史。
// 运行失败同样会被记录，返回的错误为引擎错误。
func (a *App) Suggest(ctx context.Context, ds *Dataset, tolerance float64) (*tradeopt.Report, *history.Run, error) {
	engine, err := a.newEngine()
	if err != nil {
		return nil, nil, err
	}

	req := ds.Request
	req.Problem.Tolerance = tolerance

	runCtx, cancel := a.runContext(ctx)
	defer cancel()

	report, runErr := engine.Run(runCtx, req)

	run, recErr := a.history.RecordRun(ctx, req, report, runErr)
	if recErr != nil {
		a.logger.Warn("保存运行记录失败", zap.Error(recErr))
	}
	if runErr != nil {
		return nil, run, runErr
	}
	return report, run, nil
}

// Sweep 在多个容差上依次运行优化。
func (a *App) Sweep(ctx context.Context, ds *Dataset, cfg sweep.Config) (sweep.Result, error) {
	engine, err := a.newEngine()
	if err != nil {
		return sweep.Result{}, err
	}
	runner, err := sweep.NewRunner(cfg, engine, a.history, a.logger.Named("sweep"))
	if err != nil {
		return sweep.Result{}, err
	}

	runCtx, cancel := a.runContext(ctx)
	defer cancel()
	return runner.Run(runCtx, ds.Request)
}

// Runs 返回最近的运行记录。
func (a *App) Runs(ctx context.Context, limit int) ([]history.Run, error) {
	return a.history.ListRuns(ctx, limit)
}

// RunTrades 返回某次运行的概要与交易记录。
func (a *App) RunTrades(ctx context.Context, runID string) (*history.Run, []history.Trade, error) {
	run, err := a.history.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	trades, err := a.history.Trades(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, trades, nil
}

func (a *App) newEngine() (*tradeopt.Engine, error) {
	opt := a.cfg.Optimizer
	s, err := solver.New(opt.Solver, solver.Options{
		MaxNodes:       opt.MaxNodes,
		IntegralityTol: opt.IntegralityTol,
	}, a.logger.Named("solver"))
	if err != nil {
		return nil, err
	}
	return tradeopt.NewEngine(s, a.logger.Named("engine"))
}

func (a *App) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Optimizer.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Optimizer.Timeout)
}

// participants 优先使用配置中的交易方，否则使用库存文件对应的交易方。
func (a *App) participants(in Inputs) []tradeopt.Agent {
	if len(a.cfg.Optimizer.Participants) > 0 {
		out := make([]tradeopt.Agent, 0, len(a.cfg.Optimizer.Participants))
		for _, p := range a.cfg.Optimizer.Participants {
			out = append(out, tradeopt.Agent(p))
		}
		return out
	}
	out := make([]tradeopt.Agent, 0, len(in.Inventories))
	for agent := range in.Inventories {
		out = append(out, agent)
	}
	return out
}

