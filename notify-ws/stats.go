package notifyws

import (
	"context"
	"time"

	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
)

// Stats summarises the connection registry.
type Stats struct {
	TakenAt     time.Time      `json:"takenAt"`
	Connections int            `json:"connections"`
	Users       int            `json:"users"`
	MaxPerUser  int            `json:"maxPerUser"`
	Expired     int            `json:"expired"` // past TTL, not yet removed
	ByEndpoint  map[string]int `json:"byEndpoint"`
	OldestAt    *time.Time     `json:"oldestAt,omitempty"`
}

// CollectStats scans every registry record.
func CollectStats(ctx context.Context, connections Scanner, now time.Time) (Stats, error) {
	stats := Stats{
		TakenAt:    now.UTC(),
		ByEndpoint: map[string]int{},
	}
	perUser := map[string]int{}
	var oldest int64

	err := connections.Each(ctx, func(conn connectiondao.Connection) error {
		stats.Connections++
		perUser[conn.UserID]++
		stats.ByEndpoint[conn.Endpoint]++
		if conn.TTL > 0 && now.Unix() >= conn.TTL {
			stats.Expired++
		}
		if conn.EstablishedAt > 0 && (oldest == 0 || conn.EstablishedAt < oldest) {
			oldest = conn.EstablishedAt
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Users = len(perUser)
	for _, n := range perUser {
		if n > stats.MaxPerUser {
			stats.MaxPerUser = n
		}
	}
	if oldest > 0 {
		t := time.Unix(oldest, 0).UTC()
		stats.OldestAt = &t
	}
	return stats, nil
}
