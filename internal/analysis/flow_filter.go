package analysis

import (
	"context"
	"strings"

	"github.com/Wikid82/gatewatch/internal/models"
)

// IsInteresting decides whether a raw flow is worth normalizing. Blocked
// flows and medium/high risk flows are always kept; otherwise only incoming
// connections to a sensitive port survive.
func IsInteresting(r models.FlowRecord) bool {
	if strings.EqualFold(strings.TrimSpace(r.Action), string(models.ActionBlocked)) {
		return true
	}
	switch models.RiskLevel(strings.ToLower(string(r.RiskLevel))) {
	case models.RiskMedium, models.RiskHigh:
		return true
	}
	return strings.EqualFold(string(r.Direction), string(models.DirectionIncoming)) && IsSensitivePort(r.DestPort)
}

// FilterFlows streams records from in and forwards only interesting ones.
// dropped, when non-nil, is called for each discarded record. The returned
// channel closes when in closes or ctx is done.
func FilterFlows(ctx context.Context, in <-chan models.FlowRecord, dropped func(models.FlowRecord)) <-chan models.FlowRecord {
	out := make(chan models.FlowRecord)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-in:
				if !ok {
					return
				}
				if !IsInteresting(r) {
					if dropped != nil {
						dropped(r)
					}
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
