// Package billing records deployment lifecycle events for usage
// accounting. Rates and invoicing live elsewhere; this package only
// timestamps when a deployment started and ended.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/ec2keeper/internal/store"
)

// UsageStore persists usage events.
type UsageStore interface {
	RecordUsage(ctx context.Context, deploymentID string, kind store.UsageKind, at time.Time) error
	ListUsage(ctx context.Context, deploymentID string) ([]store.UsageEvent, error)
}

// Tracker implements the provisioner's billing hooks on top of a
// UsageStore.
type Tracker struct {
	store  UsageStore
	logger logr.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(s UsageStore, logger logr.Logger) *Tracker {
	return &Tracker{store: s, logger: logger.WithName("billing"), now: time.Now}
}

// TrackDeploymentStart records that a deployment began accruing usage.
func (t *Tracker) TrackDeploymentStart(ctx context.Context, deploymentID string) error {
	return t.record(ctx, deploymentID, store.UsageStart)
}

// TrackDeploymentEnd records that a deployment stopped accruing usage.
func (t *Tracker) TrackDeploymentEnd(ctx context.Context, deploymentID string) error {
	return t.record(ctx, deploymentID, store.UsageEnd)
}

func (t *Tracker) record(ctx context.Context, deploymentID string, kind store.UsageKind) error {
	if deploymentID == "" {
		return fmt.Errorf("deployment id is empty")
	}
	at := t.now().UTC()
	if err := t.store.RecordUsage(ctx, deploymentID, kind, at); err != nil {
		return fmt.Errorf("failed to record %s for deployment %s: %w", kind, deploymentID, err)
	}
	t.logger.V(1).Info("usage recorded", "deployment", deploymentID, "kind", string(kind))
	return nil
}

// Usage sums the time between each start event and the following end
// event. An open interval is counted up to now.
func (t *Tracker) Usage(ctx context.Context, deploymentID string) (time.Duration, error) {
	events, err := t.store.ListUsage(ctx, deploymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list usage for deployment %s: %w", deploymentID, err)
	}

	var total time.Duration
	var started *time.Time
	for _, e := range events {
		switch e.Kind {
		case store.UsageStart:
			if started == nil {
				at := e.At
				started = &at
			}
		case store.UsageEnd:
			if started != nil {
				total += e.At.Sub(*started)
				started = nil
			}
		}
	}
	if started != nil {
		total += t.now().Sub(*started)
	}
	return total, nil
}
