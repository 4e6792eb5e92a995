package tradeopt

import (
	"sort"

	"github.com/shopspring/decimal"
)

// selectedThreshold 之上视为选中；纯二元模型的解只会是 0 或 1。
const selectedThreshold = 0.5

// Extract 将决策取值转换为交易记录，并左连接价格与物品信息。
// 缺失价格保留为空值，不使用默认价填充。结果按 (给出方, 接收方, 物品) 排序。
func Extract(decisions Decisions, prices PriceTable, catalog Catalog) []TradeRecord {
	records := make([]TradeRecord, 0)
	for key, value := range decisions {
		if value <= selectedThreshold {
			continue
		}

		record := TradeRecord{
			Giver:    key.Giver,
			Receiver: key.Receiver,
			Item:     key.Item,
		}
		if price, ok := prices[key.Item]; ok {
			record.UnitPrice = decimal.NewNullDecimal(decimal.NewFromFloat(price))
		}
		if info, ok := catalog[key.Item]; ok {
			record.Name = info.Name
			record.Set = info.Set
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Giver != b.Giver {
			return a.Giver < b.Giver
		}
		if a.Receiver != b.Receiver {
			return a.Receiver < b.Receiver
		}
		return a.Item < b.Item
	})
	return records
}
