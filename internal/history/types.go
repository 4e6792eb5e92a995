package history

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"card-broker/internal/tradeopt"
)

// ErrRunNotFound 表示指定的运行记录不存在。
var ErrRunNotFound = errors.New("history: 运行记录不存在")

// 运行失败时写入的状态，成功时记录求解器状态。
const (
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// Run 为一次优化运行的概要。
type Run struct {
	ID         string    `db:"id" json:"id" yaml:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
	Agents     string    `db:"agents" json:"agents" yaml:"agents"`
	Tolerance  float64   `db:"tolerance" json:"tolerance" yaml:"tolerance"`
	Status     string    `db:"status" json:"status" yaml:"status"`
	Objective  float64   `db:"objective" json:"objective" yaml:"objective"`
	TradeCount int       `db:"trade_count" json:"trade_count" yaml:"trade_count"`
	Error      string    `db:"error" json:"error,omitempty" yaml:"error,omitempty"`
}

// Trade 为持久化的单条交易建议。
type Trade struct {
	RunID     string              `db:"run_id" json:"run_id"`
	Giver     string              `db:"giver" json:"from"`
	Receiver  string              `db:"receiver" json:"to"`
	Item      string              `db:"item" json:"price_id"`
	Name      string              `db:"name" json:"name,omitempty"`
	SetID     string              `db:"set_id" json:"set_id,omitempty"`
	UnitPrice decimal.NullDecimal `db:"unit_price" json:"price"`
}

// Record 还原为引擎的交易记录。
func (t Trade) Record() tradeopt.TradeRecord {
	return tradeopt.TradeRecord{
		Giver:     tradeopt.Agent(t.Giver),
		Receiver:  tradeopt.Agent(t.Receiver),
		Item:      tradeopt.Item(t.Item),
		UnitPrice: t.UnitPrice,
		Name:      t.Name,
		Set:       t.SetID,
	}
}

func tradeFromRecord(runID string, r tradeopt.TradeRecord) Trade {
	return Trade{
		RunID:     runID,
		Giver:     string(r.Giver),
		Receiver:  string(r.Receiver),
		Item:      string(r.Item),
		Name:      r.Name,
		SetID:     r.Set,
		UnitPrice: r.UnitPrice,
	}
}
