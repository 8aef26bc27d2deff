package delivery

import (
	"context"
	"fmt"
	"time"

	"userbus/pkg/cel"
	"userbus/pkg/models"
)

// Condition names a downstream situation the classifier can detect.
type Condition string

const (
	ConditionCatastrophic      Condition = "catastrophic"
	ConditionInvalid           Condition = "invalid"
	ConditionStale             Condition = "stale"
	ConditionMissingDependency Condition = "missing_dependency"
	ConditionUnreachable       Condition = "unreachable"
	ConditionDuplicate         Condition = "duplicate"
)

// Precedence is the order conditions are checked in; the first match wins.
var Precedence = []Condition{
	ConditionCatastrophic,
	ConditionInvalid,
	ConditionStale,
	ConditionMissingDependency,
	ConditionUnreachable,
}

// Attempt is everything a predicate may look at for one delivery.
type Attempt struct {
	Event         models.UnitEvent
	Properties    map[string]string
	DeliveryCount int
	IsFinal       bool
}

// IsFinalAttempt reports whether attempt is the last one the broker will make.
// Counts past the ceiling are treated as final too.
func IsFinalAttempt(attempt, maxAttempts int) bool {
	return attempt >= maxAttempts
}

type Predicate interface {
	Matches(ctx context.Context, att Attempt) (bool, error)
}

type PredicateFunc func(ctx context.Context, att Attempt) (bool, error)

func (f PredicateFunc) Matches(ctx context.Context, att Attempt) (bool, error) {
	return f(ctx, att)
}

// Rules binds conditions to predicates. Conditions without a predicate never match.
type Rules map[Condition]Predicate

type celPredicate struct {
	program *cel.Predicate
	now     func() time.Time
}

func (p *celPredicate) Matches(ctx context.Context, att Attempt) (bool, error) {
	return p.program.Eval(ctx, cel.Input{
		Event:         att.Event,
		Properties:    att.Properties,
		DeliveryCount: att.DeliveryCount,
		Now:           p.now(),
	})
}

// NewCELPredicate compiles expression against the unit event environment.
func NewCELPredicate(eval *cel.Evaluator, expression string, now func() time.Time) (Predicate, error) {
	program, err := eval.CompilePredicate(expression)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &celPredicate{program: program, now: now}, nil
}

// DefaultExpressions reproduces the demo discriminator: the last two digits of
// the phone number select the simulated downstream condition.
func DefaultExpressions() map[Condition]string {
	return map[Condition]string{
		ConditionCatastrophic:      cel.FieldEndsWith("phoneNumber", "99"),
		ConditionInvalid:           cel.FieldEndsWith("phoneNumber", "09"),
		ConditionStale:             cel.FieldEndsWith("phoneNumber", "08"),
		ConditionMissingDependency: cel.FieldEndsWith("phoneNumber", "07"),
		ConditionUnreachable:       cel.FieldEndsWith("phoneNumber", "06"),
	}
}

// CompileRules turns condition expressions into Rules. Unknown condition
// names are rejected.
func CompileRules(eval *cel.Evaluator, expressions map[Condition]string, now func() time.Time) (Rules, error) {
	known := make(map[Condition]bool, len(Precedence))
	for _, c := range Precedence {
		known[c] = true
	}

	rules := make(Rules, len(expressions))
	for cond, expr := range expressions {
		if !known[cond] {
			return nil, fmt.Errorf("unknown condition %q", cond)
		}
		p, err := NewCELPredicate(eval, expr, now)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cond, err)
		}
		rules[cond] = p
	}
	return rules, nil
}
