package notifybus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	consumer "github.com/harlow/kinesis-consumer"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/rs/zerolog"
)

// Handler is the bus subscription entry point. In lambda mode EventBridge
// invokes it directly; in console mode it tails the bus's kinesis mirror.
type Handler struct {
	service notifycli.Service
	Logger  zerolog.Logger
	router  *Router
}

func NewHandler(service notifycli.Service, router *Router) *Handler {
	return &Handler{
		service: service,
		Logger:  notifycli.Logger(service),
		router:  router,
	}
}

func (h *Handler) Start() error {
	switch {
	case notifycli.CommonOpts.Console:
		return h.handleRealtime(MirrorStreamName(notifycli.CommonOpts.Env))

	default:
		lambda.Start(h.HandleCloudWatchEvent)
	}
	return nil
}

// HandleCloudWatchEvent routes a single event delivered by an EventBridge
// rule. Malformed events are dropped, since redelivery can't fix them.
func (h *Handler) HandleCloudWatchEvent(ctx context.Context, cwe events.CloudWatchEvent) error {
	ctx = h.Logger.WithContext(ctx)
	e, err := FromCloudWatchEvent(cwe)
	if err != nil {
		h.Logger.Warn().Err(err).Str("event", cwe.ID).Str("detail_type", cwe.DetailType).Msg("dropping malformed event")
		return nil
	}
	return h.router.Route(ctx, e)
}

func (h *Handler) handleRealtime(streamName string) error {
	c, err := consumer.New(streamName, consumer.WithShardIteratorType("LATEST"))
	if err != nil {
		return fmt.Errorf("unable to create consumer for stream %v: %w", streamName, err)
	}

	ctx := h.Logger.WithContext(context.Background())
	callback := func(record *consumer.Record) error {
		var cwe events.CloudWatchEvent
		if err := json.Unmarshal(record.Data, &cwe); err != nil {
			h.Logger.Warn().Err(err).Msg("skipping record that isn't an eventbridge event")
			return nil
		}
		if err := h.HandleCloudWatchEvent(ctx, cwe); err != nil {
			h.Logger.Error().Err(err).Str("event", cwe.ID).Msg("failed to route event")
		}
		return nil
	}
	h.Logger.Info().Str("stream", streamName).Msg("listening for bus events")
	return c.Scan(ctx, callback)
}

// LocalBus stands in for EventBridge when everything runs in one process.
// Events take the same wire form a rule delivers, then go straight to the
// attached router.
type LocalBus struct {
	Region string

	mu     sync.RWMutex
	router *Router
}

var errNoRouter = errors.New("local bus has no router attached")

func (b *LocalBus) Attach(router *Router) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.router = router
}

func (b *LocalBus) Send(ctx context.Context, e Event) error {
	b.mu.RLock()
	router := b.router
	b.mu.RUnlock()
	if router == nil {
		return errNoRouter
	}

	detail, err := e.Detail()
	if err != nil {
		return fmt.Errorf("marshalling event detail: %w", err)
	}
	delivered, err := FromCloudWatchEvent(events.CloudWatchEvent{
		DetailType: e.EventType,
		Source:     e.Source,
		Region:     b.Region,
		Time:       time.Now(),
		Detail:     detail,
	})
	if err != nil {
		return err
	}
	if err := router.Route(ctx, delivered); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event_type", e.EventType).Msg("local bus delivery failed")
	}
	return nil
}
