package guardrail

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// celEnv is the shared CEL environment for expression rules. Expressions
// see two map variables: the proposal content and the evaluation context.
var celEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("content", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("guardrail: CEL env: %v", err))
	}
	return env
}()

// CELRuleSpec describes an expression rule as it appears in the policy
// file. The expression must evaluate to a bool; true means the proposal
// VIOLATES the rule.
type CELRuleSpec struct {
	Code       string                 `yaml:"code"`
	Category   contracts.RuleCategory `yaml:"category"`
	Severity   contracts.Severity     `yaml:"severity"`
	Message    string                 `yaml:"message"`
	Expression string                 `yaml:"expr"`
}

// CompileCELRule compiles an expression rule into a catalog Rule. The
// program is compiled once here; evaluation errors at runtime are treated
// as non-violations and logged, so a broken tenant expression cannot block
// the whole pipeline open or closed.
func CompileCELRule(spec CELRuleSpec) (Rule, error) {
	ast, issues := celEnv.Compile(spec.Expression)
	if issues != nil && issues.Err() != nil {
		return Rule{}, fmt.Errorf("rule %s: compile: %w", spec.Code, issues.Err())
	}
	prog, err := celEnv.Program(ast)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: program: %w", spec.Code, err)
	}

	logger := slog.Default().With("component", "guardrail", "rule", spec.Code)

	r := Rule{
		Code:     spec.Code,
		Category: spec.Category,
		Severity: spec.Severity,
		// Expression rules are never auto-fixable: there is no inverse
		// expression to derive a fix from.
		Fixable: false,
	}
	r.Check = func(content, ctx map[string]any) *contracts.RuleViolation {
		if content == nil {
			content = map[string]any{}
		}
		if ctx == nil {
			ctx = map[string]any{}
		}
		out, _, err := prog.Eval(map[string]any{"content": content, "ctx": ctx})
		if err != nil {
			logger.Warn("expression evaluation failed", "error", err)
			return nil
		}
		violated, ok := out.Value().(bool)
		if !ok {
			logger.Warn("expression did not return bool")
			return nil
		}
		if !violated {
			return nil
		}
		msg := spec.Message
		if msg == "" {
			msg = "policy expression violated"
		}
		return r.violation(msg)
	}
	return r, nil
}
