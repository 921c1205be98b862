// internal/service/flashdeal/domain/port/eligibility.go
package port

// EligibilityFact 是资格规则可见的事实集合。
type EligibilityFact struct {
	UserID   string
	Quantity int64
}

// EligibilityEngine 评估商品配置的资格规则（CEL 表达式）。
// 这只是业务准入门槛；数量安全由计数器的 TryReserve 保证，
// 规则检查与后续扣减之间存在窗口是可接受的。
type EligibilityEngine interface {
	Evaluate(rule string, fact EligibilityFact) (bool, error)
}
