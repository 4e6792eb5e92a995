package tradeopt

import (
	"errors"
	"fmt"
	"strings"

	"card-broker/internal/solver"
)

var (
	// ErrInvalidProblem 表示输入表存在非法取值。
	ErrInvalidProblem = errors.New("tradeopt: 输入无效")
	// ErrParticipants 表示无法确定恰好两个交易方。
	ErrParticipants = errors.New("tradeopt: 必须恰好有两个交易方")
	// ErrNotOptimal 表示求解未得到最优解，不得提取交易。
	ErrNotOptimal = errors.New("tradeopt: 未找到最优解")
	// ErrValidation 为全部交易校验失败的共同根错误。
	ErrValidation = errors.New("tradeopt: 交易校验失败")

	ErrSelfTrade            = fmt.Errorf("%w: 交易双方相同", ErrValidation)
	ErrInsufficientHoldings = fmt.Errorf("%w: 给出方持有数量不足", ErrValidation)
	ErrItemTradedTwice      = fmt.Errorf("%w: 同一物品被交易多次", ErrValidation)
	ErrDoubleReceipt        = fmt.Errorf("%w: 同一交易方重复接收同一物品", ErrValidation)
	ErrDoubleGive           = fmt.Errorf("%w: 同一交易方重复给出同一物品", ErrValidation)
)

// NotOptimalError 携带求解器返回的非最优状态。
type NotOptimalError struct {
	Status solver.Status
}

func (e *NotOptimalError) Error() string {
	return fmt.Sprintf("tradeopt: 未找到最优解 (status=%s)", e.Status)
}

func (e *NotOptimalError) Unwrap() error {
	return ErrNotOptimal
}

// Violation 命名一类校验失败。
type Violation string

const (
	ViolationSelfTrade            Violation = "self_trade"
	ViolationInsufficientHoldings Violation = "insufficient_holdings"
	ViolationItemTradedTwice      Violation = "item_traded_twice"
	ViolationDoubleReceipt        Violation = "double_receipt"
	ViolationDoubleGive           Violation = "double_give"
)

// ValidationError 描述一次具体的校验失败及涉及的物品。
type ValidationError struct {
	Violation Violation
	Items     []Item
}

func (e *ValidationError) Error() string {
	items := make([]string, len(e.Items))
	for i, item := range e.Items {
		items[i] = string(item)
	}
	return fmt.Sprintf("%v [%s]", e.Unwrap(), strings.Join(items, ", "))
}

func (e *ValidationError) Unwrap() error {
	switch e.Violation {
	case ViolationSelfTrade:
		return ErrSelfTrade
	case ViolationInsufficientHoldings:
		return ErrInsufficientHoldings
	case ViolationItemTradedTwice:
		return ErrItemTradedTwice
	case ViolationDoubleReceipt:
		return ErrDoubleReceipt
	case ViolationDoubleGive:
		return ErrDoubleGive
	default:
		return ErrValidation
	}
}
