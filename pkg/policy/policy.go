// Package policy evaluates site-specific deny rules against I/O events.
//
// Rules are boolean expressions over an event snapshot (type, size,
// metadata), compiled once at engine construction and evaluated with a
// sandboxed expression VM. A rule that evaluates to true denies the event.
//
// Supported in expressions:
//   - Comparison operators: >, <, >=, <=, ==, !=
//   - Logical operators: && (AND), || (OR), ! (NOT)
//   - Arithmetic operators: +, -, *, /, %
//   - String helpers: contains, startsWith, endsWith
//   - Fields: type (string), size (int), endpoint (string),
//     metadata (map of string to string)
//
// No arbitrary code execution: the expression language has no I/O, no
// imports, and no reflection.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dshills/ioguard/pkg/event"
)

// unsafePatterns are substrings never allowed in rule expressions. The
// expression VM cannot reach the OS either way; rejecting these early
// gives configuration errors a clear message instead of a compile failure.
var unsafePatterns = []string{
	"os.", "exec", "eval", "system", "popen", "__import__", "subprocess",
}

// Rule is one named deny rule.
type Rule struct {
	// Name identifies the rule in verdicts and logs
	Name string `yaml:"name" json:"name"`

	// Expression is the boolean deny condition
	Expression string `yaml:"expression" json:"expression"`
}

type compiledRule struct {
	name    string
	program *vm.Program
}

// Engine holds compiled deny rules. Immutable after construction and safe
// for concurrent use.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the given rules.
//
// Returns an error for caller misuse: unnamed rules, duplicate names,
// unsafe patterns, or expressions that do not compile to a boolean.
func NewEngine(rules []Rule) (*Engine, error) {
	eng := &Engine{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]bool, len(rules))

	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("duplicate rule name: %s", rule.Name)
		}
		seen[rule.Name] = true

		if err := checkExpression(rule.Expression); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}

		program, err := expr.Compile(rule.Expression,
			expr.Env(ruleEnv(nil)),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %s does not compile: %w", rule.Name, err)
		}
		eng.rules = append(eng.rules, compiledRule{name: rule.Name, program: program})
	}
	return eng, nil
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// checkExpression rejects expressions carrying unsafe patterns.
func checkExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return fmt.Errorf("expression cannot be empty")
	}
	lower := strings.ToLower(expression)
	for _, pattern := range unsafePatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("unsafe pattern %q in expression", pattern)
		}
	}
	return nil
}

// ruleEnv builds the evaluation environment for an event. A nil event
// yields the zero-valued environment used for compilation.
func ruleEnv(ev *event.IOEvent) map[string]interface{} {
	env := map[string]interface{}{
		"type":     "",
		"size":     0,
		"endpoint": "",
		"metadata": map[string]string{},
	}
	if ev == nil {
		return env
	}
	env["type"] = string(ev.Type)
	env["size"] = ev.Size()
	env["endpoint"] = ev.Endpoint()
	if ev.Metadata != nil {
		env["metadata"] = ev.Metadata
	}
	return env
}

// Evaluate runs every rule against the event, in order. Returns the name
// of the first rule that denies the event, or "" if all rules pass.
//
// A rule that fails to evaluate (for example, a metadata key lookup on a
// missing key in a strict expression) counts as an engine error, not a
// deny; configuration bugs must not silently block traffic.
func (e *Engine) Evaluate(ctx context.Context, ev *event.IOEvent) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("nil event")
	}

	env := ruleEnv(ev)
	for _, rule := range e.rules {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		out, err := vm.Run(rule.program, env)
		if err != nil {
			return "", fmt.Errorf("rule %s failed to evaluate: %w", rule.name, err)
		}
		denied, ok := out.(bool)
		if !ok {
			return "", fmt.Errorf("rule %s did not evaluate to a boolean", rule.name)
		}
		if denied {
			return rule.name, nil
		}
	}
	return "", nil
}
