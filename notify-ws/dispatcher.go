package notifyws

import (
	"context"
	"errors"
	"fmt"
	"time"

	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 50
	defaultMaxAttempts = 3
	defaultPushTimeout = 3 * time.Second
	defaultBackoff     = 100 * time.Millisecond
)

// Registry is the part of the connection registry the dispatcher needs.
type Registry interface {
	ListByUser(ctx context.Context, userID string) ([]connectiondao.Connection, error)
	Remove(ctx context.Context, userID, connectionID string) error
}

// Recorder receives dispatch metrics; notifycli.Metrics satisfies it.
type Recorder interface {
	Count(ctx context.Context, name notifycli.MetricName, n int, dimensions ...map[notifycli.DimensionName]string)
	Timing(ctx context.Context, name notifycli.MetricName, start time.Time, dimensions ...map[notifycli.DimensionName]string)
}

// Dispatcher fans a notification out to every open connection of its target
// user, removing connections the transport reports gone.
type Dispatcher struct {
	Registry    Registry
	Transport   Transport
	Logger      zerolog.Logger
	Metrics     Recorder      // optional
	Concurrency int           // max concurrent pushes (default 50)
	MaxAttempts int           // push attempts per connection (default 3)
	PushTimeout time.Duration // per attempt (default 3s)
	Backoff     time.Duration // first retry delay, doubled per attempt (default 100ms)

	RegistryTimeout time.Duration // per registry call (default 2s)
}

// Report summarises one dispatch.
type Report struct {
	Connections int
	Delivered   int
	Gone        int
	Dropped     int
}

type outcome int

const (
	delivered outcome = iota
	gone
	dropped
)

// Deliver dispatches a routed event's payload, verbatim, to its target user.
func (d *Dispatcher) Deliver(ctx context.Context, e notifybus.Event) error {
	start := time.Now()
	report, err := d.Dispatch(ctx, e.TargetUserID, e.Payload)
	if err != nil {
		return err
	}

	d.Logger.Debug().
		Str("event_type", e.EventType).
		Str("user_id", e.TargetUserID).
		Int("connections", report.Connections).
		Int("delivered", report.Delivered).
		Int("gone", report.Gone).
		Int("dropped", report.Dropped).
		Msg("dispatched event")

	if d.Metrics != nil {
		dims := map[notifycli.DimensionName]string{notifycli.EventTypeDimension: e.EventType}
		d.Metrics.Count(ctx, notifycli.NotificationDeliveredMetric, report.Delivered, dims)
		d.Metrics.Count(ctx, notifycli.ConnectionGoneMetric, report.Gone, dims)
		d.Metrics.Count(ctx, notifycli.NotificationDroppedMetric, report.Dropped, dims)
		d.Metrics.Timing(ctx, notifycli.DispatchTimeMetric, start, dims)
	}
	return nil
}

// Dispatch pushes payload to every connection registered for userID. The
// error is non-nil only when the registry couldn't be read; individual push
// failures are reflected in the report.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, payload []byte) (Report, error) {
	conns, err := d.listByUser(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("listing connections for user %v: %w", userID, err)
	}
	if len(conns) == 0 {
		return Report{}, nil
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	// a plain group, so one connection failing never cancels the others
	var g errgroup.Group
	g.SetLimit(concurrency)

	outcomes := make([]outcome, len(conns))
	for i, conn := range conns {
		i, conn := i, conn
		g.Go(func() error {
			outcomes[i] = d.push(ctx, conn, payload)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Connections: len(conns)}
	for _, o := range outcomes {
		switch o {
		case delivered:
			report.Delivered++
		case gone:
			report.Gone++
		default:
			report.Dropped++
		}
	}
	return report, nil
}

func (d *Dispatcher) listByUser(ctx context.Context, userID string) ([]connectiondao.Connection, error) {
	var conns []connectiondao.Connection
	err := retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		return registryAttempt(ctx, registryTimeout(d.RegistryTimeout), func(ctx context.Context) error {
			found, err := d.Registry.ListByUser(ctx, userID)
			if err != nil {
				d.Logger.Debug().Err(err).Str("user_id", userID).Msg("registry read failed")
				return err
			}
			conns = found
			return nil
		})
	})
	return conns, err
}

func (d *Dispatcher) push(ctx context.Context, conn connectiondao.Connection, payload []byte) outcome {
	logger := d.Logger.With().
		Str("user_id", conn.UserID).
		Str("connection_id", conn.ConnectionID).
		Logger()

	attempts := 0
	err := retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		attempts++
		pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout())
		defer cancel()

		err := d.Transport.Push(pushCtx, conn, payload)
		if err != nil && (IsTransient(err) || timedOut(ctx, pushCtx)) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return delivered

	case errors.Is(err, ErrGone):
		logger.Info().Msg("connection gone, cleaning up")
		removeCtx, cancel := context.WithTimeout(ctx, registryTimeout(d.RegistryTimeout))
		defer cancel()
		if err := d.Registry.Remove(removeCtx, conn.UserID, conn.ConnectionID); err != nil {
			logger.Error().Err(err).Msg("failed to remove gone connection")
		}
		return gone

	default:
		logger.Warn().Err(err).Int("attempts", attempts).Msg("dropping notification")
		return dropped
	}
}

func (d *Dispatcher) backoff() retry.Backoff {
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := d.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

func (d *Dispatcher) pushTimeout() time.Duration {
	if d.PushTimeout > 0 {
		return d.PushTimeout
	}
	return defaultPushTimeout
}
