package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "broker",
		Usage: "在两位收藏者之间寻找价值最大且公平的卡牌交换",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径，默认使用 configs/config.yaml",
				EnvVars: []string{"BROKER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			suggestCmd,
			sweepCmd,
			historyCmd,
			tradesCmd,
			serveCmd,
		},
	}
}
