// internal/service/flashdeal/infrastructure/cel_eligibility.go
package infrastructure

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain/port"
)

// CelEligibilityEngine 用 CEL 表达式判定用户是否有资格参与秒杀。
// 规则示例: "quantity <= 2" 或 "user_id != 'banned_user'"。
// 编译结果按规则文本缓存，同一条规则只编译一次。
type CelEligibilityEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelEligibilityEngine 构建规则引擎，声明规则可见的变量。
func NewCelEligibilityEngine() (*CelEligibilityEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("quantity", cel.IntType),
		cel.Variable("user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL environment: %w", err)
	}
	return &CelEligibilityEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 执行规则。规则为空视为不限制，直接放行。
func (e *CelEligibilityEngine) Evaluate(rule string, fact port.EligibilityFact) (bool, error) {
	if rule == "" {
		return true, nil
	}

	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"quantity": fact.Quantity,
		"user_id":  fact.UserID,
	})
	if err != nil {
		return false, fmt.Errorf("eligibility rule evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eligibility rule must evaluate to bool, got %T", out.Value())
	}
	return allowed, nil
}

func (e *CelEligibilityEngine) program(rule string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[rule]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile eligibility rule %q: %w", rule, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for rule %q: %w", rule, err)
	}

	e.mu.Lock()
	e.programs[rule] = prg
	e.mu.Unlock()
	return prg, nil
}

var _ port.EligibilityEngine = (*CelEligibilityEngine)(nil)
