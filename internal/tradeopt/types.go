package tradeopt

import (
	"math"

	"github.com/shopspring/decimal"
)

// Agent 标识一个交易方。
type Agent string

// Item 标识一种可交易物品（带价格的卡牌版本）。
type Item string

// HoldingKey 为库存表的复合键。
type HoldingKey struct {
	Agent Agent
	Item  Item
}

// Inventory 记录 (交易方, 物品) → 持有数量。
type Inventory map[HoldingKey]int

// Quantity 返回持有数量，缺失视为 0。
func (inv Inventory) Quantity(agent Agent, item Item) int {
	return inv[HoldingKey{Agent: agent, Item: item}]
}

// PriceTable 记录物品单价。
type PriceTable map[Item]float64

// ItemInfo 为随交易记录透传的物品描述信息。
type ItemInfo struct {
	Name string `json:"name"`
	Set  string `json:"set"`
}

// Catalog 以物品为键保存描述信息。
type Catalog map[Item]ItemInfo

// DecisionKey 为决策变量的复合键，Giver 与 Receiver 必然不同。
type DecisionKey struct {
	Giver    Agent
	Receiver Agent
	Item     Item
}

// Decisions 为求解后每个决策变量的取值（包含取 0 的变量）。
type Decisions map[DecisionKey]float64

// TradeRecord 为一次被采纳的单件物品转移。UnitPrice 无效表示价格表中缺少该物品。
type TradeRecord struct {
	Giver     Agent               `json:"from"`
	Receiver  Agent               `json:"to"`
	Item      Item                `json:"price_id"`
	UnitPrice decimal.NullDecimal `json:"price"`
	Name      string              `json:"name,omitempty"`
	Set       string              `json:"set_id,omitempty"`
}

// Problem 为一次优化的全部输入，运行期间视为只读快照。
type Problem struct {
	Items        []Item
	Prices       PriceTable
	DefaultPrice float64
	Inventory    Inventory
	// Tolerance 为两方交换价值允许的相对偏差，0 表示必须严格相等，1 表示不限制。
	Tolerance float64
	// Participants 显式指定两个交易方；为空时从库存键推导。
	Participants []Agent
}

func (p Problem) price(item Item) float64 {
	if v, ok := p.Prices[item]; ok {
		return v
	}
	return p.DefaultPrice
}

func validNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
