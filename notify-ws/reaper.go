package notifyws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
)

// Reaper closes the gateway session behind every connection record that
// leaves the registry, whether by disconnect, gone cleanup or TTL expiry.
// It is fed REMOVE records from the registry table's stream.
type Reaper struct {
	Transport Transport
	Logger    zerolog.Logger
}

// OnRemove is a notifyddb.DeleteCallback.
func (r *Reaper) OnRemove(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := notifyddb.ParseItem(oldValue, &conn); err != nil {
		return fmt.Errorf("unable to parse removed connection: %w", err)
	}
	if conn.ConnectionID == "" {
		return nil
	}

	logger := r.Logger.With().
		Str("user_id", conn.UserID).
		Str("connection_id", conn.ConnectionID).
		Logger()

	if err := r.Transport.Close(ctx, conn); err != nil {
		if IsTransient(err) {
			return fmt.Errorf("closing connection %v: %w", conn.ConnectionID, err)
		}
		logger.Warn().Err(err).Msg("unable to close removed connection")
		return nil
	}
	logger.Debug().Msg("closed removed connection")
	return nil
}
