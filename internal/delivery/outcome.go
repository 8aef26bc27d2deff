package delivery

import "userbus/internal/observability"

// Kind is the delivery outcome taxonomy.
type Kind int

const (
	Succeeded Kind = iota
	RetryableFailure
	TerminalFailure
	Discarded
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case RetryableFailure:
		return "retryable_failure"
	case TerminalFailure:
		return "terminal_failure"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

const (
	ReasonMissingRequiredFields  = "missing required fields"
	ReasonStaleMessage           = "stale message"
	ReasonDuplicateMessage       = "duplicate message"
	ReasonDependencyNotAvailable = "dependency not available"
	ReasonTargetUnreachable      = "target unreachable"
	ReasonInvalidMessageBody     = "invalid message body"
)

// Outcome is the result of one delivery attempt. Condition records which rule
// produced it and is empty for a plain success.
type Outcome struct {
	Kind      Kind
	Reason    string
	Condition Condition
}

func Success() Outcome {
	return Outcome{Kind: Succeeded}
}

func Retryable(reason string, cond Condition) Outcome {
	return Outcome{Kind: RetryableFailure, Reason: reason, Condition: cond}
}

func Terminal(reason string, cond Condition) Outcome {
	return Outcome{Kind: TerminalFailure, Reason: reason, Condition: cond}
}

func Discard(reason string, cond Condition) Outcome {
	return Outcome{Kind: Discarded, Reason: reason, Condition: cond}
}

// Status is the observation status reported for the outcome.
func (o Outcome) Status() observability.Status {
	switch o.Kind {
	case Succeeded:
		return observability.StatusSucceeded
	case Discarded:
		return observability.StatusDiscarded
	case RetryableFailure:
		return observability.StatusAttemptFailed
	case TerminalFailure:
		return observability.StatusFailed
	default:
		return observability.StatusNotAvailable
	}
}

// EventID is the observation event kind reported for the outcome.
func (o Outcome) EventID() observability.EventID {
	switch o.Condition {
	case ConditionStale:
		return observability.SubscriberDeliveryDiscardedStaleMessage
	case ConditionDuplicate:
		return observability.SubscriberDeliveryDiscardedDuplicateMessage
	case ConditionMissingDependency:
		return observability.SubscriberDeliveryFailedMissingDependency
	case ConditionUnreachable:
		return observability.SubscriberDeliveryFailedUnreachableTarget
	case ConditionInvalid:
		return observability.SubscriberDeliveryFailedInvalidMessage
	}
	if o.Kind == Succeeded {
		return observability.SubscriberDeliverySucceeded
	}
	return observability.SubscriberDeliveryFailedException
}
