package config

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Input     InputConfig     `mapstructure:"input"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// OptimizerConfig 控制交易优化与求解器。
type OptimizerConfig struct {
	Solver         string        `mapstructure:"solver"`
	Tolerance      float64       `mapstructure:"tolerance"`
	DefaultPrice   float64       `mapstructure:"default_price"`
	MaxNodes       int           `mapstructure:"max_nodes"`
	IntegralityTol float64       `mapstructure:"integrality_tol"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Participants   []string      `mapstructure:"participants"`
}

// SweepConfig 控制容差扫描。
type SweepConfig struct {
	Tolerances  []float64 `mapstructure:"tolerances"`
	StopAtFirst bool      `mapstructure:"stop_at_first"`
}

// InputConfig 描述库存与价格文件格式。
type InputConfig struct {
	InventoryDelimiter string            `mapstructure:"inventory_delimiter"`
	PriceDelimiter     string            `mapstructure:"price_delimiter"`
	SetAliases         map[string]string `mapstructure:"set_aliases"`
}

// Delimiters 返回库存与价格文件的分隔符。
func (c InputConfig) Delimiters() (inventory, price rune) {
	inventory, _ = utf8.DecodeRuneInString(c.InventoryDelimiter)
	price, _ = utf8.DecodeRuneInString(c.PriceDelimiter)
	return inventory, price
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ServerConfig 控制历史查询 HTTP 服务。
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Optimizer.Solver == "" {
		err = multierr.Append(err, errors.New("optimizer.solver 不能为空"))
	}
	if !inUnitInterval(c.Optimizer.Tolerance) {
		err = multierr.Append(err, errors.New("optimizer.tolerance 必须位于[0,1]"))
	}
	if math.IsNaN(c.Optimizer.DefaultPrice) || c.Optimizer.DefaultPrice < 0 {
		err = multierr.Append(err, errors.New("optimizer.default_price 不能为负"))
	}
	if c.Optimizer.MaxNodes <= 0 {
		err = multierr.Append(err, errors.New("optimizer.max_nodes 必须大于0"))
	}
	if c.Optimizer.IntegralityTol <= 0 || c.Optimizer.IntegralityTol >= 0.5 {
		err = multierr.Append(err, errors.New("optimizer.integrality_tol 必须位于(0,0.5)"))
	}
	if c.Optimizer.Timeout < 0 {
		err = multierr.Append(err, errors.New("optimizer.timeout 不能为负"))
	}
	if n := len(c.Optimizer.Participants); n != 0 && n != 2 {
		err = multierr.Append(err, errors.New("optimizer.participants 必须为空或恰好两个交易方"))
	}
	for _, tol := range c.Sweep.Tolerances {
		if !inUnitInterval(tol) {
			err = multierr.Append(err, fmt.Errorf("sweep.tolerances 包含无效值 %v", tol))
		}
	}
	if utf8.RuneCountInString(c.Input.InventoryDelimiter) != 1 {
		err = multierr.Append(err, errors.New("input.inventory_delimiter 必须为单个字符"))
	}
	if utf8.RuneCountInString(c.Input.PriceDelimiter) != 1 {
		err = multierr.Append(err, errors.New("input.price_delimiter 必须为单个字符"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr 不能为空"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
