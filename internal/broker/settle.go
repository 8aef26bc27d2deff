package broker

import (
	"time"

	"userbus/internal/constants"
	"userbus/internal/settlement"
)

type stepKind int

const (
	stepComplete stepKind = iota
	stepDeadLetter
	stepRedeliver
)

func (k stepKind) String() string {
	switch k {
	case stepComplete:
		return "complete"
	case stepDeadLetter:
		return "dead_letter"
	case stepRedeliver:
		return "redeliver"
	default:
		return "unknown"
	}
}

// step is the broker-side action derived from a settlement decision.
type step struct {
	kind   stepKind
	reason string
	delay  time.Duration
}

// planSettlement applies the delivery-count ceiling on top of the handler's
// decision. deliveryCount is 1-based; maxDelivery <= 0 disables the ceiling.
func planSettlement(decision settlement.Decision, handlerErr error, deliveryCount, maxDelivery int, lock time.Duration) step {
	if handlerErr != nil {
		decision = settlement.Decision{Action: settlement.None}
	}

	switch decision.Action {
	case settlement.Acknowledge:
		return step{kind: stepComplete}
	case settlement.Reject:
		reason := decision.Reason
		if reason == "" {
			reason = "rejected"
		}
		return step{kind: stepDeadLetter, reason: reason}
	}

	if maxDelivery > 0 && deliveryCount+1 > maxDelivery {
		return step{kind: stepDeadLetter, reason: constants.ReasonMaxDeliveryCountExceeded}
	}

	if decision.Action == settlement.Retry {
		return step{kind: stepRedeliver}
	}
	return step{kind: stepRedeliver, delay: lock}
}
