package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "broker"
)

// Load 读取配置文件并结合环境变量返回 Config。
// path 为空且默认配置文件不存在时，仅使用内置默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("optimizer.solver", "branch-and-bound")
	v.SetDefault("optimizer.tolerance", 0.0)
	v.SetDefault("optimizer.default_price", 0.0)
	v.SetDefault("optimizer.max_nodes", 200000)
	v.SetDefault("optimizer.integrality_tol", 1e-6)
	v.SetDefault("optimizer.timeout", "2m")
	v.SetDefault("optimizer.participants", []string{})

	v.SetDefault("sweep.tolerances", []float64{0, 0.05, 0.1, 0.2, 0.3})
	v.SetDefault("sweep.stop_at_first", false)

	v.SetDefault("input.inventory_delimiter", ";")
	v.SetDefault("input.price_delimiter", ",")
	v.SetDefault("input.set_aliases", map[string]string{
		"sv35":      "sv3pt5",
		"sv45":      "sv4pt5",
		"swsh125":   "swsh12pt5",
		"swsh125gg": "swsh12pt5gg",
	})

	v.SetDefault("database.path", "data/card_broker.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stderr"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
