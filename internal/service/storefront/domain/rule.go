package domain

// Fact 是规则引擎评估时可见的事实数据。
type Fact struct {
	CartTotal     float64 `json:"cart_total"`
	EligibleTotal float64 `json:"eligible_total"`
	ItemCount     int64   `json:"item_count"`
	PriorOrders   int64   `json:"prior_orders"`
	Authenticated bool    `json:"authenticated"`
	UserID        int64   `json:"user_id"`
}

// RuleEngine 评估优惠上配置的附加条件表达式。
type RuleEngine interface {
	Evaluate(expression string, fact Fact) (bool, error)
}

// RuleValidator 只编译不执行, 保存优惠前用来拒绝写错的表达式。
type RuleValidator interface {
	Validate(expression string) error
}
