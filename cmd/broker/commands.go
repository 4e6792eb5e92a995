package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"card-broker/internal/app"
	"card-broker/internal/config"
	"card-broker/internal/log"
	"card-broker/internal/store"
	"card-broker/internal/sweep"
	"card-broker/internal/tradeopt"
)

var inputFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "prices",
		Aliases:  []string{"p"},
		Required: true,
		Usage:    "价格表：CSV 文件、.parquet 文件或 Parquet 分片目录",
	},
	&cli.StringSliceFlag{
		Name:     "inventory",
		Aliases:  []string{"i"},
		Required: true,
		Usage:    "交易方库存，格式 agent=FILE，需指定两次",
	},
}

var formatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Value:   string(app.FormatTable),
	Usage:   "输出格式: table | json | yaml",
}

var suggestCmd = &cli.Command{
	Name:  "suggest",
	Usage: "计算一次最优交易建议",
	Flags: append(append([]cli.Flag{}, inputFlags...),
		&cli.Float64Flag{
			Name:    "tolerance",
			Aliases: []string{"t"},
			Usage:   "公平容差 [0,1]，未指定时使用配置值",
		},
		formatFlag,
	),
	Action: func(c *cli.Context) error {
		format, err := app.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		return withApp(c, func(ctx context.Context, cfg *config.Config, a *app.App) error {
			ds, err := loadInputs(ctx, c, a)
			if err != nil {
				return err
			}
			tolerance := cfg.Optimizer.Tolerance
			if c.IsSet("tolerance") {
				tolerance = c.Float64("tolerance")
			}
			report, run, err := a.Suggest(ctx, ds, tolerance)
			if err != nil {
				if run != nil {
					return fmt.Errorf("运行 %s 失败: %w", run.ID, err)
				}
				return err
			}
			return app.RenderReport(c.App.Writer, format, report, run, ds.Holdings)
		})
	},
}

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "按递增的公平容差依次求解",
	Flags: append(append([]cli.Flag{}, inputFlags...),
		&cli.StringFlag{
			Name:  "tolerances",
			Usage: "逗号分隔的容差列表，例如 0,0.05,0.1；未指定时使用配置值",
		},
		&cli.BoolFlag{
			Name:  "stop-at-first",
			Usage: "找到首个产生交易的容差后停止",
		},
		formatFlag,
	),
	Action: func(c *cli.Context) error {
		format, err := app.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		return withApp(c, func(ctx context.Context, cfg *config.Config, a *app.App) error {
			sweepCfg := sweep.Config{
				Tolerances:  cfg.Sweep.Tolerances,
				StopAtFirst: cfg.Sweep.StopAtFirst || c.Bool("stop-at-first"),
			}
			if c.IsSet("tolerances") {
				tolerances, err := parseTolerances(c.String("tolerances"))
				if err != nil {
					return err
				}
				sweepCfg.Tolerances = tolerances
			}

			ds, err := loadInputs(ctx, c, a)
			if err != nil {
				return err
			}
			result, err := a.Sweep(ctx, ds, sweepCfg)
			if err != nil {
				return err
			}
			return app.RenderSweep(c.App.Writer, format, result)
		})
	},
}

var historyCmd = &cli.Command{
	Name:  "history",
	Usage: "列出最近的运行记录",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Value:   20,
			Usage:   "最多显示的记录数",
		},
		formatFlag,
	},
	Action: func(c *cli.Context) error {
		format, err := app.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		return withApp(c, func(ctx context.Context, _ *config.Config, a *app.App) error {
			runs, err := a.Runs(ctx, c.Int("limit"))
			if err != nil {
				return err
			}
			return app.RenderRuns(c.App.Writer, format, runs)
		})
	},
}

var tradesCmd = &cli.Command{
	Name:  "trades",
	Usage: "查看某次运行的交易记录",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "run",
			Aliases:  []string{"r"},
			Required: true,
			Usage:    "运行 ID",
		},
		formatFlag,
	},
	Action: func(c *cli.Context) error {
		format, err := app.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		return withApp(c, func(ctx context.Context, _ *config.Config, a *app.App) error {
			run, trades, err := a.RunTrades(ctx, c.String("run"))
			if err != nil {
				return err
			}
			return app.RenderRunTrades(c.App.Writer, format, run, trades)
		})
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "启动只读的历史查询 HTTP 接口",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "监听地址，未指定时使用配置值",
		},
	},
	Action: func(c *cli.Context) error {
		return withApp(c, func(ctx context.Context, cfg *config.Config, a *app.App) error {
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}
			return a.Serve(ctx)
		})
	},
}

// withApp 加载配置、日志与数据库后执行 fn，并负责释放资源。
func withApp(c *cli.Context, fn func(ctx context.Context, cfg *config.Config, a *app.App) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		return err
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx := c.Context
	a, err := app.New(ctx, cfg, logger, sqliteStore)
	if err != nil {
		return err
	}

	if err := fn(ctx, cfg, a); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("收到退出信号，已停止")
			return nil
		}
		return err
	}
	return nil
}

func loadInputs(ctx context.Context, c *cli.Context, a *app.App) (*app.Dataset, error) {
	inventories, err := parseInventories(c.StringSlice("inventory"))
	if err != nil {
		return nil, err
	}
	return a.Load(ctx, app.Inputs{
		Prices:      c.String("prices"),
		Inventories: inventories,
	})
}

func parseInventories(values []string) (map[tradeopt.Agent]string, error) {
	out := make(map[tradeopt.Agent]string, len(values))
	for _, v := range values {
		agent, path, ok := strings.Cut(v, "=")
		agent, path = strings.TrimSpace(agent), strings.TrimSpace(path)
		if !ok || agent == "" || path == "" {
			return nil, fmt.Errorf("库存参数 %q 格式应为 agent=FILE", v)
		}
		if _, dup := out[tradeopt.Agent(agent)]; dup {
			return nil, fmt.Errorf("交易方 %q 重复指定", agent)
		}
		out[tradeopt.Agent(agent)] = path
	}
	return out, nil
}

func parseTolerances(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("容差 %q 无效: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("至少需要一个容差")
	}
	return out, nil
}
