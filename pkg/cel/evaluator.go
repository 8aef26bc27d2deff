package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"userbus/pkg/models"
)

// Input is the activation a predicate is evaluated against.
type Input struct {
	Event         models.UnitEvent
	Properties    map[string]string
	DeliveryCount int
	Now           time.Time
}

func (in Input) vars() map[string]interface{} {
	props := in.Properties
	if props == nil {
		props = map[string]string{}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	return map[string]interface{}{
		"event":         in.Event.Attributes(),
		"properties":    props,
		"deliveryCount": int64(in.DeliveryCount),
		"now":           now,
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("deliveryCount", cel.IntType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidatePredicate checks that expression compiles and can yield a bool.
func (e *Evaluator) ValidatePredicate(expression string) error {
	_, err := e.compilePredicate(expression)
	return err
}

func (e *Evaluator) compilePredicate(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	out := ast.OutputType()
	if out != cel.BoolType && out != cel.DynType {
		return nil, fmt.Errorf("predicate expression must return bool, got %v", out)
	}

	return ast, nil
}

// Predicate is a compiled boolean expression, safe for concurrent use.
type Predicate struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompilePredicate(expression string) (*Predicate, error) {
	ast, err := e.compilePredicate(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Predicate{expression: expression, program: program}, nil
}

func (p *Predicate) Expression() string {
	return p.expression
}

func (p *Predicate) Eval(ctx context.Context, in Input) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, in.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", p.expression, err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not return bool, got %T", p.expression, result.Value())
	}

	return boolVal, nil
}

// EvaluatePredicate compiles and runs expression in one step.
func (e *Evaluator) EvaluatePredicate(ctx context.Context, expression string, in Input) (bool, error) {
	p, err := e.CompilePredicate(expression)
	if err != nil {
		return false, err
	}
	return p.Eval(ctx, in)
}
