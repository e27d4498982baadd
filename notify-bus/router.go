package notifybus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sender puts an event on a bus.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// Target receives events that matched a local subscription rule.
type Target interface {
	Deliver(ctx context.Context, e Event) error
}

// Replicator forwards events to peer regions.
type Replicator interface {
	Replicate(ctx context.Context, e Event) error
}

type Router struct {
	Region     string
	Rules      []Rule
	Bus        Sender
	Local      Target
	Replicator Replicator
	Logger     zerolog.Logger
}

func NewRouter(region string, bus Sender, local Target, replicator Replicator, logger zerolog.Logger) *Router {
	return &Router{
		Region:     region,
		Rules:      DefaultRules,
		Bus:        bus,
		Local:      local,
		Replicator: replicator,
		Logger:     logger,
	}
}

// Publish validates an event and puts it on the bus. A nil error means the bus
// accepted it; delivery happens later, when the bus invokes Route.
func (r *Router) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.OriginRegion == "" {
		e.OriginRegion = r.Region
	}
	if err := r.Bus.Send(ctx, e); err != nil {
		return fmt.Errorf("unable to publish %v event for user %v: %w", e.EventType, e.TargetUserID, err)
	}
	return nil
}

// Route evaluates the subscription rules for an event delivered by the bus.
// Local delivery and replication run concurrently. Only the local error is
// returned, so the bus redelivers when the local dispatch failed.
func (r *Router) Route(ctx context.Context, e Event) error {
	logger := r.Logger.With().
		Str("event_type", e.EventType).
		Str("source", e.Source).
		Str("user_id", e.TargetUserID).
		Str("origin", e.OriginRegion).
		Logger()

	match := Evaluate(r.Rules, e)
	if !match.Local {
		logger.Debug().Msg("no rule matched, ignoring event")
		return nil
	}
	logger.Debug().Strs("rules", match.Rules).Bool("replicate", match.Replicate).Msg("routing event")

	var group errgroup.Group
	if match.Replicate && r.Replicator != nil {
		group.Go(func() error {
			if err := r.Replicator.Replicate(ctx, e); err != nil {
				logger.Warn().Err(err).Msg("replication failed")
			}
			return nil
		})
	}

	var localErr error
	if r.Local != nil {
		localErr = r.Local.Deliver(ctx, e)
	}
	_ = group.Wait()

	if localErr != nil {
		return fmt.Errorf("unable to deliver %v event to user %v: %w", e.EventType, e.TargetUserID, localErr)
	}
	return nil
}
