package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"userbus/pkg/models"
)

// ErrCatastrophicFailure is returned instead of an Outcome when the
// catastrophic condition matches. It must not be turned into a retry.
var ErrCatastrophicFailure = errors.New("catastrophic delivery failure")

type Option func(*Classifier)

// WithStalenessWindow discards events whose own timestamp is older than window
// at processing time. Zero disables the check.
func WithStalenessWindow(window time.Duration) Option {
	return func(c *Classifier) {
		c.stalenessWindow = window
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// Classifier decides the outcome of delivering one unit event. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	rules           Rules
	stalenessWindow time.Duration
	now             func() time.Time
}

func NewClassifier(rules Rules, opts ...Option) *Classifier {
	c := &Classifier{
		rules: rules,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify is ClassifyAttempt for callers that only have the event.
func (c *Classifier) Classify(ctx context.Context, evt models.UnitEvent, isFinalAttempt bool) (Outcome, error) {
	return c.ClassifyAttempt(ctx, Attempt{Event: evt, IsFinal: isFinalAttempt})
}

func (c *Classifier) ClassifyAttempt(ctx context.Context, att Attempt) (Outcome, error) {
	for _, cond := range Precedence {
		if cond == ConditionStale && c.isOutsideWindow(att) {
			return Discard(ReasonStaleMessage, ConditionStale), nil
		}

		predicate, ok := c.rules[cond]
		if !ok || predicate == nil {
			continue
		}

		matched, err := predicate.Matches(ctx, att)
		if err != nil {
			return Outcome{}, fmt.Errorf("evaluate %s condition for entity %s: %w", cond, att.Event.EntityID, err)
		}
		if !matched {
			continue
		}

		switch cond {
		case ConditionCatastrophic:
			return Outcome{}, fmt.Errorf("%w: entity %s", ErrCatastrophicFailure, att.Event.EntityID)
		case ConditionInvalid:
			return Terminal(ReasonMissingRequiredFields, cond), nil
		case ConditionStale:
			return Discard(ReasonStaleMessage, cond), nil
		case ConditionMissingDependency:
			return retryUnlessFinal(ReasonDependencyNotAvailable, cond, att.IsFinal), nil
		case ConditionUnreachable:
			return retryUnlessFinal(ReasonTargetUnreachable, cond, att.IsFinal), nil
		}
	}

	return Success(), nil
}

func (c *Classifier) isOutsideWindow(att Attempt) bool {
	if c.stalenessWindow <= 0 || att.Event.Timestamp.IsZero() {
		return false
	}
	return c.now().Sub(att.Event.Timestamp.Time) > c.stalenessWindow
}

func retryUnlessFinal(reason string, cond Condition, isFinal bool) Outcome {
	if isFinal {
		return Terminal(reason, cond)
	}
	return Retryable(reason, cond)
}
