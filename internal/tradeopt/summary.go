package tradeopt

import "github.com/shopspring/decimal"

// Flow 汇总一个方向上的交换情况。
type Flow struct {
	Giver    Agent           `json:"from"`
	Receiver Agent           `json:"to"`
	Count    int             `json:"total_cards"`
	Value    decimal.Decimal `json:"total_value"`
	Unpriced int             `json:"unpriced"`
}

// Summarize 按 (给出方, 接收方) 汇总交易数量与价值，两个方向总是都出现。
func Summarize(agents [2]Agent, records []TradeRecord) []Flow {
	flows := []Flow{
		{Giver: agents[0], Receiver: agents[1], Value: decimal.Zero},
		{Giver: agents[1], Receiver: agents[0], Value: decimal.Zero},
	}
	for _, r := range records {
		for i := range flows {
			f := &flows[i]
			if f.Giver != r.Giver || f.Receiver != r.Receiver {
				continue
			}
			f.Count++
			if r.UnitPrice.Valid {
				f.Value = f.Value.Add(r.UnitPrice.Decimal)
			} else {
				f.Unpriced++
			}
		}
	}
	return flows
}

// Imbalance 返回两个方向交换价值之差的绝对值。
func Imbalance(flows []Flow) decimal.Decimal {
	if len(flows) != 2 {
		return decimal.Zero
	}
	return flows[0].Value.Sub(flows[1].Value).Abs()
}
