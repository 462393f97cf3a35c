package health

import (
	"context"
)

// Pinger is satisfied by the Postgres and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports down when p fails to answer. A nil p reports degraded
// with the given message, for optional dependencies that are switched off.
func PingCheck(p Pinger, disabledMessage string) Check {
	return func(ctx context.Context) ComponentHealth {
		if p == nil {
			return ComponentHealth{Status: StatusDegraded, Message: disabledMessage}
		}
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// ReadyCheck reports down until ready returns true.
func ReadyCheck(ready func() bool, notReadyMessage string) Check {
	return func(ctx context.Context) ComponentHealth {
		if !ready() {
			return ComponentHealth{Status: StatusDown, Message: notReadyMessage}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
