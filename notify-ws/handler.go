// Package notifyws manages websocket client sessions and pushes notifications
// to them: the lifecycle handler keeps the connection registry in step with
// the gateway, and the dispatcher fans routed events out to every open
// connection of the target user.
package notifyws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

// UserHeader carries the caller's user id when no authorizer is configured.
const UserHeader = "x-user-id"

// ConnectionStore is the part of the connection registry the lifecycle
// handler needs.
type ConnectionStore interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Remove(ctx context.Context, userID, connectionID string) error
	FindByConnection(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
}

// Handler handles API Gateway websocket route events.
type Handler struct {
	Connections ConnectionStore
	Transport   Transport
	Logger      zerolog.Logger
	ConnTTL     time.Duration // TTL for connection records (default 2 hours)
	Endpoint    string        // overrides the endpoint derived from the request
	Attempts    int           // registry attempts per route event (default 3)
	Backoff     time.Duration // first retry delay (default 100ms)
	Now         func() time.Time

	RegistryTimeout time.Duration // per registry call (default 2s)
}

// HandleEvent routes an API Gateway websocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()

	switch req.RequestContext.RouteKey {
	case RouteConnect:
		return h.handleConnect(ctx, logger, req)
	case RouteDisconnect:
		return h.handleDisconnect(ctx, logger, req)
	case RouteDefault:
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Msg("unknown route")
		return response(400), nil
	}
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := UserID(req)
	if userID == "" {
		logger.Warn().Msg("refusing connection without a user")
		return response(401), nil
	}
	logger = logger.With().Str("user_id", userID).Logger()

	ttl := h.ConnTTL
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	now := h.now()

	conn := connectiondao.Connection{
		UserID:        userID,
		ConnectionID:  req.RequestContext.ConnectionID,
		Endpoint:      h.endpoint(req),
		EstablishedAt: now.Unix(),
		TTL:           now.Add(ttl).Unix(),
	}

	state, _ := Apply(Connecting, SignalConnect)
	err := h.withRetry(ctx, func(ctx context.Context) error {
		return h.Connections.Put(ctx, conn)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to store connection")
		return response(500), nil
	}

	logger.Info().Stringer("state", state).Msg("connection established")
	return response(200), nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID

	// a request naming its user is assumed open; otherwise the registry says
	from := Open
	userID := UserID(req)
	if userID == "" {
		var found *connectiondao.Connection
		err := h.withRetry(ctx, func(ctx context.Context) (err error) {
			found, err = h.Connections.FindByConnection(ctx, connID)
			return err
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to look up connection")
			return response(500), nil
		}
		if found == nil {
			from = Closed
		} else {
			userID = found.UserID
		}
	}

	state, changed := Apply(from, SignalDisconnect)
	if !changed {
		logger.Debug().Stringer("state", state).Msg("connection already closed")
		return response(200), nil
	}
	logger = logger.With().Str("user_id", userID).Logger()

	err := h.withRetry(ctx, func(ctx context.Context) error {
		return h.Connections.Remove(ctx, userID, connID)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to remove connection")
		return response(500), nil
	}

	logger.Info().Stringer("state", state).Msg("connection closed")
	return response(200), nil
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	msg, err := ParseMessage(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid message")
		return response(400), nil
	}

	switch msg.Type {
	case MsgPing:
		conn := connectiondao.Connection{
			UserID:       UserID(req),
			ConnectionID: req.RequestContext.ConnectionID,
			Endpoint:     h.endpoint(req),
		}
		if err := h.Transport.Push(ctx, conn, PongMessage()); err != nil {
			logger.Error().Err(err).Msg("failed to send pong")
		}
	default:
		logger.Debug().Str("type", msg.Type).Msg("ignoring client message")
	}
	return response(200), nil
}

// withRetry retries retryable registry errors and timed out calls with a
// short exponential backoff. Each call gets its own deadline.
func (h *Handler) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := h.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	base := h.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		return registryAttempt(ctx, registryTimeout(h.RegistryTimeout), fn)
	})
}

func (h *Handler) endpoint(req events.APIGatewayWebsocketProxyRequest) string {
	if h.Endpoint != "" {
		return h.Endpoint
	}
	return Endpoint(req)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Endpoint returns the management API endpoint for the request's stage.
func Endpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}

// UserID extracts the caller's user id: first from the authorizer context,
// then the x-user-id header, then the userId query parameter.
func UserID(req events.APIGatewayWebsocketProxyRequest) string {
	if authorizer, ok := req.RequestContext.Authorizer.(map[string]interface{}); ok {
		for _, key := range []string{"principalId", "userId"} {
			if v, ok := authorizer[key].(string); ok && v != "" {
				return v
			}
		}
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, UserHeader) && v != "" {
			return v
		}
	}
	return req.QueryStringParameters["userId"]
}

func response(status int) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status}
}
