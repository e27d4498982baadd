package notifybus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ReplicationTarget is a peer region's event bus.
type ReplicationTarget struct {
	Region string
	BusARN string
}

// BusARN returns the ARN of the named event bus in a region.
func BusARN(region, account, busName string) string {
	return fmt.Sprintf("arn:aws:events:%v:%v:event-bus/%v", region, account, busName)
}

// Targets derives the replication targets from configuration. Replication is a
// production-only behaviour, so non-production deployments get none. The local
// region, blanks and duplicates are skipped.
func Targets(local string, peers []string, account, busName string, production bool) []ReplicationTarget {
	if !production {
		return nil
	}
	var (
		seen    = map[string]struct{}{}
		targets []ReplicationTarget
	)
	for _, peer := range peers {
		region := strings.TrimSpace(peer)
		if region == "" || region == local {
			continue
		}
		if _, ok := seen[region]; ok {
			continue
		}
		seen[region] = struct{}{}
		targets = append(targets, ReplicationTarget{
			Region: region,
			BusARN: BusARN(region, account, busName),
		})
	}
	return targets
}

// Counter receives replication failure counts; notifycli.Metrics satisfies it.
type Counter interface {
	Count(ctx context.Context, name notifycli.MetricName, n int, dimensions ...map[notifycli.DimensionName]string)
}

// RegionReplicator forwards locally originated events to each peer region's
// bus. Events that arrived as replicas are never forwarded again.
type RegionReplicator struct {
	Metrics Counter // optional

	region  string
	targets []ReplicationTarget
	senders map[string]Sender
	logger  zerolog.Logger
}

// NewRegionReplicator builds one sender per target with newSender.
func NewRegionReplicator(region string, targets []ReplicationTarget, newSender func(ReplicationTarget) Sender, logger zerolog.Logger) *RegionReplicator {
	senders := make(map[string]Sender, len(targets))
	for _, target := range targets {
		senders[target.Region] = newSender(target)
	}
	return &RegionReplicator{
		region:  region,
		targets: targets,
		senders: senders,
		logger:  logger,
	}
}

func (r *RegionReplicator) Targets() []ReplicationTarget {
	return r.targets
}

// Replicate sends the event to every target concurrently. One region failing
// doesn't stop the others; all failures are returned joined.
func (r *RegionReplicator) Replicate(ctx context.Context, e Event) error {
	if e.OriginRegion != "" && e.OriginRegion != r.region {
		return nil
	}
	origin := e.OriginRegion
	if origin == "" {
		origin = r.region
		e.OriginRegion = origin
	}

	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)
	for _, target := range r.targets {
		target := target
		if target.Region == origin {
			continue
		}
		sender, ok := r.senders[target.Region]
		if !ok {
			continue
		}
		group.Go(func() error {
			if err := sender.Send(ctx, e); err != nil {
				r.logger.Warn().Err(err).
					Str("region", target.Region).
					Str("event_type", e.EventType).
					Str("user_id", e.TargetUserID).
					Msg("failed to replicate event")
				mu.Lock()
				errs = append(errs, fmt.Errorf("replicating to %v: %w", target.Region, err))
				mu.Unlock()
				if r.Metrics != nil {
					r.Metrics.Count(ctx, notifycli.ReplicationFailedMetric, 1, map[notifycli.DimensionName]string{
						notifycli.EventTypeDimension: e.EventType,
					})
				}
				return nil
			}
			r.logger.Debug().Str("region", target.Region).Str("event_type", e.EventType).Msg("replicated event")
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(errs...)
}
