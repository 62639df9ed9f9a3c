package rule

import (
	"fmt"
	"sync"

	"storefront/internal/service/storefront/domain"

	"github.com/google/cel-go/cel"
)

// CELRuleEngineAdapter 是 domain.RuleEngine 接口的 CEL 实现。
// 表达式可以引用 cart_total, eligible_total, item_count, prior_orders, authenticated, user_id。
type CELRuleEngineAdapter struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELRuleEngineAdapter() (*CELRuleEngineAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("cart_total", cel.DoubleType),
		cel.Variable("eligible_total", cel.DoubleType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("prior_orders", cel.IntType),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("user_id", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}
	return &CELRuleEngineAdapter{env: env, programs: make(map[string]cel.Program)}, nil
}

// Validate 实现了 domain.RuleValidator 接口。
func (a *CELRuleEngineAdapter) Validate(expression string) error {
	_, err := a.program(expression)
	return err
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (a *CELRuleEngineAdapter) Evaluate(expression string, fact domain.Fact) (bool, error) {
	prg, err := a.program(expression)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"cart_total":     fact.CartTotal,
		"eligible_total": fact.EligibleTotal,
		"item_count":     fact.ItemCount,
		"prior_orders":   fact.PriorOrders,
		"authenticated":  fact.Authenticated,
		"user_id":        fact.UserID,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return result, nil
}

// program 编译结果按表达式文本缓存, 同一优惠反复计算时不再解析
func (a *CELRuleEngineAdapter) program(expression string) (cel.Program, error) {
	a.mu.RLock()
	prg, ok := a.programs[expression]
	a.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := a.env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile rule: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build rule program: %w", err)
	}

	a.mu.Lock()
	a.programs[expression] = prg
	a.mu.Unlock()
	return prg, nil
}
