// internal/service/cash/infrastructure/rule/cel_engine.go
package rule

import (
	"context"
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"cashkeyboard/internal/service/cash/domain"
)

// RuleDefinition 是一条风控规则。Expr 为真时请求被判为可疑。
type RuleDefinition struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

type rulesFile struct {
	Rules []RuleDefinition `yaml:"rules"`
}

type compiledRule struct {
	name    string
	program cel.Program
}

// CELFraudChecker 是 domain.FraudChecker 接口的 CEL 实现。
// 它把规则表达式适配到我们自己的领域接口上：规则改动只需要改配置文件，
// 不需要改发放链路的代码。
type CELFraudChecker struct {
	rules []compiledRule
}

// NewCELFraudChecker 编译给定的规则集。任何一条规则编译失败都直接报错，
// 带着坏规则启动比拒绝启动更危险。
func NewCELFraudChecker(defs []RuleDefinition) (*CELFraudChecker, error) {
	env, err := cel.NewEnv(
		cel.Variable("userId", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("amount", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	compiled := make([]compiledRule, 0, len(defs))
	for _, def := range defs {
		ast, iss := env.Compile(def.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, errors.Wrapf(iss.Err(), "compile fraud rule %q", def.Name)
		}
		if ast.OutputType() != cel.BoolType {
			return nil, errors.Errorf("fraud rule %q must evaluate to bool, got %s", def.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "build program for fraud rule %q", def.Name)
		}
		compiled = append(compiled, compiledRule{name: def.Name, program: prg})
	}
	return &CELFraudChecker{rules: compiled}, nil
}

// NewCELFraudCheckerFromFile 从 YAML 文件加载规则。
// path 为空时使用内置规则集。
func NewCELFraudCheckerFromFile(path string) (*CELFraudChecker, error) {
	if path == "" {
		return NewCELFraudChecker(DefaultRules())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fraud rules file %s", path)
	}
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse fraud rules file %s", path)
	}
	return NewCELFraudChecker(file.Rules)
}

// DefaultRules 是内置的兜底规则集。
func DefaultRules() []RuleDefinition {
	return []RuleDefinition{
		{
			Name: "single-earn-over-daily-cap",
			Expr: fmt.Sprintf("amount > %d", domain.MaxDailyEarn),
		},
		{
			Name: "flagged-client",
			Expr: `"riskFlag" in metadata && metadata["riskFlag"] == "blocked"`,
		},
	}
}

// Validate 实现 domain.FraudChecker。命中任何一条规则即拒绝。
func (c *CELFraudChecker) Validate(_ context.Context, fact domain.EarnFact) error {
	input := map[string]interface{}{
		"userId":   fact.UserID,
		"source":   fact.Source,
		"amount":   int64(fact.Amount),
		"metadata": fact.Metadata,
	}
	if input["metadata"] == nil {
		input["metadata"] = map[string]string{}
	}

	for _, r := range c.rules {
		out, _, err := r.program.Eval(input)
		if err != nil {
			// 单条规则求值失败跳过，剩余规则继续评估。
			// 规则已通过编译期类型检查，这里只剩运行时缺字段一类问题
			continue
		}
		if out == types.True {
			return errors.Wrapf(domain.ErrFraudSuspected, "rule %s matched", r.name)
		}
	}
	return nil
}
