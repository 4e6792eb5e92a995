package tradeopt

import "sort"

// minHoldingToGive 为给出一件物品时给出方至少应持有的数量（保留一件）。
const minHoldingToGive = 2

// Validate 对整批交易执行一致性检查，任一检查失败即整体拒绝。
// 按交易方分组的检查先于按物品分组的检查，以便报告最具体的违规类型。
func Validate(records []TradeRecord, inventory Inventory) error {
	var selfTrades []Item
	for _, r := range records {
		if r.Giver == r.Receiver {
			selfTrades = append(selfTrades, r.Item)
		}
	}
	if len(selfTrades) > 0 {
		return violation(ViolationSelfTrade, selfTrades)
	}

	var short []Item
	for _, r := range records {
		if inventory.Quantity(r.Giver, r.Item) < minHoldingToGive {
			short = append(short, r.Item)
		}
	}
	if len(short) > 0 {
		return violation(ViolationInsufficientHoldings, short)
	}

	if dup := duplicates(records, func(r TradeRecord) interface{} {
		return HoldingKey{Agent: r.Receiver, Item: r.Item}
	}); len(dup) > 0 {
		return violation(ViolationDoubleReceipt, dup)
	}

	if dup := duplicates(records, func(r TradeRecord) interface{} {
		return HoldingKey{Agent: r.Giver, Item: r.Item}
	}); len(dup) > 0 {
		return violation(ViolationDoubleGive, dup)
	}

	if dup := duplicates(records, func(r TradeRecord) interface{} { return r.Item }); len(dup) > 0 {
		return violation(ViolationItemTradedTwice, dup)
	}

	return nil
}

// duplicates 按分组键统计记录，返回出现多于一次的分组所涉及的物品。
func duplicates(records []TradeRecord, groupKey func(TradeRecord) interface{}) []Item {
	counts := make(map[interface{}]int, len(records))
	for _, r := range records {
		counts[groupKey(r)]++
	}

	seen := make(map[Item]struct{})
	var items []Item
	for _, r := range records {
		if counts[groupKey(r)] <= 1 {
			continue
		}
		if _, ok := seen[r.Item]; ok {
			continue
		}
		seen[r.Item] = struct{}{}
		items = append(items, r.Item)
	}
	return items
}

func violation(kind Violation, items []Item) error {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &ValidationError{Violation: kind, Items: sorted}
}
