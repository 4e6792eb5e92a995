// Package dataset 负责把库存导出文件与价格表整理成优化引擎使用的内存表。
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"card-broker/internal/tradeopt"
)

// 库存导出文件中按版本拆分的数量列，以及对应的版本名。
var inventoryVariants = []struct {
	column  string
	variant string
}{
	{column: "Normal Quantity", variant: "normal_quantity"},
	{column: "Holo Quantity", variant: "holo_quantity"},
	{column: "Reverse Holo Quantity", variant: "reverse_holo_quantity"},
}

// 价格表 price_type 到版本名的映射。
var priceTypeVariants = map[string]string{
	"normal_market":          "normal_quantity",
	"holofoil_market":        "holo_quantity",
	"reverseHolofoil_market": "reverse_holo_quantity",
}

// DefaultSetAliases 将库存导出中的系列编号对齐到价格表的写法。
var DefaultSetAliases = map[string]string{
	"sv35":      "sv3pt5",
	"sv45":      "sv4pt5",
	"swsh125":   "swsh12pt5",
	"swsh125gg": "swsh12pt5gg",
}

// Options 控制文件解析。
type Options struct {
	InventoryDelimiter rune
	PriceDelimiter     rune
	SetAliases         map[string]string
}

// Loader 读取库存与价格文件。
type Loader struct {
	opts   Options
	logger *zap.Logger
}

// NewLoader 创建加载器，未设置的分隔符分别默认为 ';' 与 ','。
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InventoryDelimiter == 0 {
		opts.InventoryDelimiter = ';'
	}
	if opts.PriceDelimiter == 0 {
		opts.PriceDelimiter = ','
	}
	if opts.SetAliases == nil {
		opts.SetAliases = DefaultSetAliases
	}
	return &Loader{opts: opts, logger: logger}
}

// ItemID 由卡牌编号与版本名拼出价格表中的物品标识。
func ItemID(cardID, variant string) tradeopt.Item {
	return tradeopt.Item(cardID + "_" + variant)
}

// ReadInventory 解析一个交易方的库存导出，按版本展开并丢弃数量为 0 的行。
func (l *Loader) ReadInventory(r io.Reader, agent tradeopt.Agent) (tradeopt.Inventory, tradeopt.Catalog, error) {
	rows, cols, err := readTable(r, l.opts.InventoryDelimiter)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: 读取 %s 的库存失败: %w", agent, err)
	}

	idCol, err := cols.require("Id")
	if err != nil {
		return nil, nil, err
	}
	nameCol := cols.optional("Name")
	setCol := cols.optional("Set")

	variantCols := make([]int, len(inventoryVariants))
	for i, v := range inventoryVariants {
		variantCols[i] = cols.optional(v.column)
	}

	inventory := make(tradeopt.Inventory)
	catalog := make(tradeopt.Catalog)
	dropped := 0
	for line, row := range rows {
		cardID := l.alignSet(strings.TrimSpace(row[idCol]))
		if cardID == "" {
			continue
		}
		for i, v := range inventoryVariants {
			col := variantCols[i]
			if col < 0 {
				continue
			}
			qty, err := parseQuantity(row[col])
			if err != nil {
				return nil, nil, fmt.Errorf("dataset: %s 库存第 %d 行 %s 无效: %w", agent, line+2, v.column, err)
			}
			if qty <= 0 {
				dropped++
				continue
			}
			item := ItemID(cardID, v.variant)
			inventory[tradeopt.HoldingKey{Agent: agent, Item: item}] += qty
			catalog[item] = tradeopt.ItemInfo{Name: cell(row, nameCol), Set: cell(row, setCol)}
		}
	}

	l.logger.Debug("库存解析完成",
		zap.String("agent", string(agent)),
		zap.Int("holdings", len(inventory)),
		zap.Int("dropped_zero_quantity", dropped),
	)
	return inventory, catalog, nil
}

// LoadInventories 并发读取多个交易方的库存文件，任一失败则整体失败。
func (l *Loader) LoadInventories(ctx context.Context, files map[tradeopt.Agent]string) (tradeopt.Inventory, tradeopt.Catalog, error) {
	if len(files) == 0 {
		return nil, nil, errors.New("dataset: 未提供库存文件")
	}

	var (
		mu        sync.Mutex
		inventory = make(tradeopt.Inventory)
		catalog   = make(tradeopt.Catalog)
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for agent, path := range files {
		agent, path := agent, path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("dataset: 打开库存文件 %q 失败: %w", path, err)
			}
			defer f.Close()

			inv, cat, err := l.ReadInventory(f, agent)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for k, v := range inv {
				inventory[k] += v
			}
			for k, v := range cat {
				catalog[k] = v
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return inventory, catalog, nil
}

// priceRow 为价格表的一行，CSV 与 Parquet 两种来源都先整理成这个形状。
type priceRow struct {
	ID        string   `parquet:"id"`
	Name      string   `parquet:"name,optional"`
	SetID     string   `parquet:"set_id,optional"`
	PriceType string   `parquet:"price_type"`
	Price     *float64 `parquet:"price,optional"`
}

// ReadPrices 解析 CSV 价格表，price_type 对齐为版本名。空价格的行视为缺失。
func (l *Loader) ReadPrices(r io.Reader) (tradeopt.PriceTable, tradeopt.Catalog, error) {
	rows, cols, err := readTable(r, l.opts.PriceDelimiter)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: 读取价格表失败: %w", err)
	}

	idCol, err := cols.require("id")
	if err != nil {
		return nil, nil, err
	}
	typeCol, err := cols.require("price_type")
	if err != nil {
		return nil, nil, err
	}
	priceCol, err := cols.require("price")
	if err != nil {
		return nil, nil, err
	}
	nameCol := cols.optional("name")
	setCol := cols.optional("set_id")

	records := make([]priceRow, 0, len(rows))
	for line, row := range rows {
		rec := priceRow{
			ID:        cell(row, idCol),
			Name:      cell(row, nameCol),
			SetID:     cell(row, setCol),
			PriceType: cell(row, typeCol),
		}
		if raw := cell(row, priceCol); raw != "" {
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("dataset: 价格表第 %d 行价格无效 %q", line+2, raw)
			}
			rec.Price = &price
		}
		records = append(records, rec)
	}
	return l.alignPrices(records)
}

// LoadPrices 读取价格数据。目录与 .parquet 文件按 Parquet 数据集读取，其余按 CSV 读取。
func (l *Loader) LoadPrices(path string) (tradeopt.PriceTable, tradeopt.Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: 打开价格文件 %q 失败: %w", path, err)
	}
	if info.IsDir() || isParquet(path) {
		return l.LoadPriceDataset(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: 打开价格文件 %q 失败: %w", path, err)
	}
	defer f.Close()
	return l.ReadPrices(f)
}

func (l *Loader) alignPrices(records []priceRow) (tradeopt.PriceTable, tradeopt.Catalog, error) {
	prices := make(tradeopt.PriceTable)
	catalog := make(tradeopt.Catalog)
	missing := 0
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		if rec.Price == nil {
			missing++
			continue
		}
		price := *rec.Price
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, nil, fmt.Errorf("dataset: 价格表第 %d 行价格无效 %v", i+2, price)
		}

		priceType := strings.TrimSpace(rec.PriceType)
		variant, ok := priceTypeVariants[priceType]
		if !ok {
			variant = priceType
		}
		item := ItemID(strings.TrimSpace(rec.ID), variant)
		prices[item] = price
		catalog[item] = tradeopt.ItemInfo{Name: strings.TrimSpace(rec.Name), Set: strings.TrimSpace(rec.SetID)}
	}

	l.logger.Debug("价格表解析完成", zap.Int("prices", len(prices)), zap.Int("missing", missing))
	return prices, catalog, nil
}

// alignSet 按别名表改写卡牌编号中的系列前缀，例如 sv35-12 → sv3pt5-12。
func (l *Loader) alignSet(cardID string) string {
	prefix, rest, found := strings.Cut(cardID, "-")
	alias, ok := l.opts.SetAliases[prefix]
	if !ok {
		return cardID
	}
	if !found {
		return alias
	}
	return alias + "-" + rest
}

type header map[string]int

func (h header) require(name string) (int, error) {
	idx, ok := h[name]
	if !ok {
		return -1, fmt.Errorf("dataset: 缺少列 %q", name)
	}
	return idx, nil
}

func (h header) optional(name string) int {
	if idx, ok := h[name]; ok {
		return idx
	}
	return -1
}

func readTable(r io.Reader, delimiter rune) ([][]string, header, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("文件为空")
	}

	h := make(header, len(records[0]))
	for i, name := range records[0] {
		h[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	return records[1:], h, nil
}

func parseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if qty < 0 {
		return 0, fmt.Errorf("数量为负: %d", qty)
	}
	return qty, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
