package dataset

import (
	"sort"

	"github.com/shopspring/decimal"

	"card-broker/internal/tradeopt"
)

// Tradable 返回可交易物品全集：有价格且至少被一方持有的物品，按标识排序。
func Tradable(prices tradeopt.PriceTable, inventory tradeopt.Inventory) []tradeopt.Item {
	held := make(map[tradeopt.Item]struct{})
	for key, qty := range inventory {
		if qty <= 0 {
			continue
		}
		if _, ok := prices[key.Item]; ok {
			held[key.Item] = struct{}{}
		}
	}

	items := make([]tradeopt.Item, 0, len(held))
	for item := range held {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// MergeCatalogs 合并多个描述表，靠后的表覆盖靠前的同名物品。
func MergeCatalogs(catalogs ...tradeopt.Catalog) tradeopt.Catalog {
	merged := make(tradeopt.Catalog)
	for _, c := range catalogs {
		for item, info := range c {
			merged[item] = info
		}
	}
	return merged
}

// HoldingSummary 为单个交易方的持仓概览。
type HoldingSummary struct {
	Agent    tradeopt.Agent  `json:"agent"`
	Units    int             `json:"units"`
	Distinct int             `json:"distinct"`
	Unpriced int             `json:"unpriced"`
	Value    decimal.Decimal `json:"value"`
}

// Holdings 按交易方汇总持仓数量与市值，缺少价格的物品只计数不计价。
func Holdings(prices tradeopt.PriceTable, inventory tradeopt.Inventory) []HoldingSummary {
	byAgent := make(map[tradeopt.Agent]*HoldingSummary)
	for key, qty := range inventory {
		if qty <= 0 {
			continue
		}
		s, ok := byAgent[key.Agent]
		if !ok {
			s = &HoldingSummary{Agent: key.Agent}
			byAgent[key.Agent] = s
		}
		s.Units += qty
		s.Distinct++
		price, ok := prices[key.Item]
		if !ok {
			s.Unpriced++
			continue
		}
		s.Value = s.Value.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))))
	}

	out := make([]HoldingSummary, 0, len(byAgent))
	for _, s := range byAgent {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}
