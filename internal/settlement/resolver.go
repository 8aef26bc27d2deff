package settlement

import "userbus/internal/delivery"

// Action is what the subscriber asks the broker to do with a message.
type Action int

const (
	// None leaves the message locked; the broker redelivers once the lock expires.
	None Action = iota
	// Retry releases the message for immediate redelivery.
	Retry
	// Acknowledge removes the message from the queue.
	Acknowledge
	// Reject moves the message to the dead-letter queue.
	Reject
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case Retry:
		return "retry"
	case Acknowledge:
		return "acknowledge"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision carries the reason along with Reject so it ends up on the
// dead-lettered message.
type Decision struct {
	Action Action
	Reason string
}

type Option func(*Resolver)

// WithImmediateRelease makes retryable failures release the message instead
// of waiting for the lock to expire.
func WithImmediateRelease(enabled bool) Option {
	return func(r *Resolver) {
		r.immediateRelease = enabled
	}
}

// Resolver maps delivery outcomes to settlement decisions.
type Resolver struct {
	immediateRelease bool
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(outcome delivery.Outcome) Decision {
	switch outcome.Kind {
	case delivery.Succeeded, delivery.Discarded:
		return Decision{Action: Acknowledge}
	case delivery.TerminalFailure:
		return Decision{Action: Reject, Reason: outcome.Reason}
	case delivery.RetryableFailure:
		if r.immediateRelease {
			return Decision{Action: Retry}
		}
		return Decision{Action: None}
	default:
		return Decision{Action: None}
	}
}

var defaultResolver = NewResolver()

// Resolve uses the default lock-expiry behaviour for retryable failures.
func Resolve(outcome delivery.Outcome) Decision {
	return defaultResolver.Resolve(outcome)
}
