package notifyws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Scanner is the part of the connection registry the janitor needs.
type Scanner interface {
	Each(ctx context.Context, fn func(connectiondao.Connection) error) error
	Remove(ctx context.Context, userID, connectionID string) error
}

// Janitor sweeps the registry for records whose session is gone, for the
// case where both the disconnect notification and every push were missed.
type Janitor struct {
	Connections Scanner
	Transport   Transport
	Logger      zerolog.Logger
	Concurrency int // max concurrent probes (default 50)
	Dry         bool
	Now         func() time.Time
}

type SweepReport struct {
	Checked int64
	Expired int64
	Gone    int64
	Failed  int64
}

// Sweep probes every registered connection and removes the ones the
// transport reports gone, plus the ones past their TTL that DynamoDB has not
// expired yet.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	concurrency := j.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	var (
		g                              errgroup.Group
		checked, expired, gone, failed atomic.Int64
	)
	g.SetLimit(concurrency)

	err := j.Connections.Each(ctx, func(conn connectiondao.Connection) error {
		g.Go(func() error {
			checked.Add(1)
			logger := j.Logger.With().
				Str("user_id", conn.UserID).
				Str("connection_id", conn.ConnectionID).
				Logger()

			if conn.TTL > 0 && now().Unix() >= conn.TTL {
				if err := j.remove(ctx, conn); err != nil {
					logger.Warn().Err(err).Msg("failed to remove expired connection")
					failed.Add(1)
					return nil
				}
				expired.Add(1)
				return nil
			}

			alive, err := j.Transport.Alive(ctx, conn)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to probe connection")
				failed.Add(1)
				return nil
			}
			if alive {
				return nil
			}
			if err := j.remove(ctx, conn); err != nil {
				logger.Warn().Err(err).Msg("failed to remove gone connection")
				failed.Add(1)
				return nil
			}
			logger.Info().Msg("removed gone connection")
			gone.Add(1)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	report := SweepReport{
		Checked: checked.Load(),
		Expired: expired.Load(),
		Gone:    gone.Load(),
		Failed:  failed.Load(),
	}
	j.Logger.Info().
		Int64("checked", report.Checked).
		Int64("expired", report.Expired).
		Int64("gone", report.Gone).
		Int64("failed", report.Failed).
		Bool("dry", j.Dry).
		Msg("sweep finished")
	return report, err
}

func (j *Janitor) remove(ctx context.Context, conn connectiondao.Connection) error {
	if j.Dry {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultRegistryTimeout)
	defer cancel()
	return j.Connections.Remove(ctx, conn.UserID, conn.ConnectionID)
}
