// Package localgw is a websocket gateway for console mode. It plays the part
// API Gateway plays in production: it assigns connection ids, invokes the
// lifecycle handler with $connect, $default and $disconnect route events, and
// serves as the Transport pushes go through.
package localgw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
)

const Stage = "local"

var errOpening = errors.New("connection still opening")

// RouteHandler receives route events, like notifyws.Handler.HandleEvent.
type RouteHandler func(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

type socket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

type Gateway struct {
	handler  RouteHandler
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	sockets map[string]*socket
}

func New(handler RouteHandler, logger zerolog.Logger) *Gateway {
	return &Gateway{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sockets: map[string]*socket{},
	}
}

// Routes mounts the gateway at /ws.
func (g *Gateway) Routes(routes chi.Router) chi.Router {
	routes.Get("/ws", g.ServeHTTP)
	return routes
}

// SetHandler replaces the route handler. The lifecycle handler pushes pongs
// through the gateway, so the two are built in either order.
func (g *Gateway) SetHandler(handler RouteHandler) {
	g.handler = handler
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := g.logger.WithContext(context.Background())
	id := uuid.NewString()
	logger := g.logger.With().Str("connection_id", id).Logger()

	// registered before $connect, so a push racing the handshake is retried
	// rather than treated as gone
	s := &socket{}
	g.add(id, s)

	resp, err := g.handler(ctx, g.request(req, id, notifyws.RouteConnect, ""))
	if err != nil || resp.StatusCode != http.StatusOK {
		g.drop(id)
		status := resp.StatusCode
		if err != nil || status == 0 {
			status = http.StatusInternalServerError
		}
		logger.Info().Err(err).Int("status", status).Msg("connection refused")
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := g.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("upgrade failed")
		g.drop(id)
		g.disconnect(ctx, req, id)
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	logger.Debug().Msg("connection open")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if _, err := g.handler(ctx, g.request(req, id, notifyws.RouteDefault, string(data))); err != nil {
			logger.Warn().Err(err).Msg("message handler failed")
		}
	}

	g.drop(id)
	_ = conn.Close()
	g.disconnect(ctx, req, id)
	logger.Debug().Msg("connection closed")
}

func (g *Gateway) disconnect(ctx context.Context, req *http.Request, id string) {
	if _, err := g.handler(ctx, g.request(req, id, notifyws.RouteDisconnect, "")); err != nil {
		g.logger.Warn().Err(err).Str("connection_id", id).Msg("disconnect handler failed")
	}
}

func (g *Gateway) request(req *http.Request, id, route, body string) events.APIGatewayWebsocketProxyRequest {
	headers := map[string]string{}
	for k, v := range req.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	query := map[string]string{}
	for k, v := range req.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return events.APIGatewayWebsocketProxyRequest{
		Headers:               headers,
		QueryStringParameters: query,
		Body:                  body,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			ConnectionID: id,
			RouteKey:     route,
			DomainName:   req.Host,
			Stage:        Stage,
			ConnectedAt:  time.Now().UnixMilli(),
		},
	}
}

func (g *Gateway) add(id string, s *socket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sockets[id] = s
}

func (g *Gateway) drop(id string) *socket {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sockets[id]
	delete(g.sockets, id)
	return s
}

func (g *Gateway) lookup(id string) (*socket, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sockets[id]
	return s, ok
}

// Push writes payload to the connection as a text message.
func (g *Gateway) Push(ctx context.Context, conn connectiondao.Connection, payload []byte) error {
	s, ok := g.lookup(conn.ConnectionID)
	if !ok {
		return fmt.Errorf("%w: %v", notifyws.ErrGone, conn.ConnectionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return notifyws.Transient(errOpening)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		g.drop(conn.ConnectionID)
		_ = s.conn.Close()
		return fmt.Errorf("%w: %v", notifyws.ErrGone, err)
	}
	return nil
}

// Close sends a close frame and tears the session down. Closing an unknown
// connection succeeds.
func (g *Gateway) Close(_ context.Context, conn connectiondao.Connection) error {
	s := g.drop(conn.ConnectionID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection removed")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

func (g *Gateway) Alive(_ context.Context, conn connectiondao.Connection) (bool, error) {
	_, ok := g.lookup(conn.ConnectionID)
	return ok, nil
}

// Len returns the number of sessions the gateway holds.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sockets)
}
