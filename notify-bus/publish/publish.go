// Package publish puts notification events on an EventBridge bus.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/eventbridge"
	"github.com/aws/aws-sdk-go/service/eventbridge/eventbridgeiface"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	"github.com/rs/zerolog"
)

// Publisher publishes events to one event bus.
type Publisher struct {
	client  eventbridgeiface.EventBridgeAPI
	busName string
}

// New creates a new Publisher. busName may be a bus name or a bus ARN.
func New(client eventbridgeiface.EventBridgeAPI, busName string) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
	}
}

// Build creates a Publisher for the environment's bus in region.
func Build(env, region string) *Publisher {
	return New(client(region), BusName(env))
}

// ForTarget creates a Publisher for a peer region's bus.
func ForTarget(target notifybus.ReplicationTarget) *Publisher {
	return New(client(target.Region), target.BusARN)
}

func client(region string) eventbridgeiface.EventBridgeAPI {
	config := aws.NewConfig()
	if region != "" {
		config = config.WithRegion(region)
	}
	return eventbridge.New(session.Must(session.NewSession(config)))
}

// BusName returns --bus-name, or the event bus name for the given environment.
func BusName(env string) string {
	if notifybus.BusOpts.BusName != "" {
		return notifybus.BusOpts.BusName
	}
	return env + "-notify-events"
}

// Send puts a single event on the bus. The call only succeeds when the bus
// accepted the entry.
func (p *Publisher) Send(ctx context.Context, e notifybus.Event) error {
	detail, err := e.Detail()
	if err != nil {
		return fmt.Errorf("marshalling event detail: %w", err)
	}

	out, err := p.client.PutEventsWithContext(ctx, &eventbridge.PutEventsInput{
		Entries: []*eventbridge.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(e.Source),
				DetailType:   aws.String(e.EventType),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing to event bus %v: %w", p.busName, err)
	}
	if aws.Int64Value(out.FailedEntryCount) > 0 {
		for _, entry := range out.Entries {
			if entry != nil && entry.ErrorCode != nil {
				return fmt.Errorf("event bus %v rejected event: %v: %v", p.busName, aws.StringValue(entry.ErrorCode), aws.StringValue(entry.ErrorMessage))
			}
		}
		return fmt.Errorf("event bus %v rejected event", p.busName)
	}
	return nil
}

// Dry logs events instead of publishing them, for --dry runs.
type Dry struct {
	Logger zerolog.Logger
}

func (d Dry) Send(_ context.Context, e notifybus.Event) error {
	d.Logger.Info().
		Str("event_type", e.EventType).
		Str("source", e.Source).
		Str("user_id", e.TargetUserID).
		RawJSON("payload", e.Payload).
		Msg("dry run, not publishing")
	return nil
}
