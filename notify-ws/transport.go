package notifyws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
)

// ErrGone is returned by a Transport when the session no longer exists.
var ErrGone = errors.New("connection gone")

// Transport pushes bytes to client sessions.
//
// Push returns nil on success, ErrGone when the session is closed, an error
// for which IsTransient is true when a retry may succeed, and any other error
// when it won't.
type Transport interface {
	Push(ctx context.Context, conn connectiondao.Connection, payload []byte) error
	Close(ctx context.Context, conn connectiondao.Connection) error
	Alive(ctx context.Context, conn connectiondao.Connection) (bool, error)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether a push failure may succeed on retry. Timeouts
// always count.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GatewayTransport pushes through the API Gateway management API of the
// endpoint each connection was registered with.
type GatewayTransport struct {
	// Endpoint, when set, replaces every connection's registered endpoint.
	Endpoint string

	newClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mgmtMu      sync.RWMutex
	mgmtClients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewGatewayTransport(endpoint string) *GatewayTransport {
	return &GatewayTransport{
		Endpoint: endpoint,
		newClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
			sess := session.Must(session.NewSession(managementConfig(endpoint)))
			return apigatewaymanagementapi.New(sess)
		},
	}
}

// managementConfig disables the SDK retryer; callers own the retry budget.
func managementConfig(endpoint string) *aws.Config {
	return aws.NewConfig().WithEndpoint(endpoint).WithMaxRetries(0)
}

func (g *GatewayTransport) Push(ctx context.Context, conn connectiondao.Connection, payload []byte) error {
	_, err := g.client(conn).PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(conn.ConnectionID),
		Data:         payload,
	})
	if err != nil {
		return classify(fmt.Errorf("posting to connection %v: %w", conn.ConnectionID, err))
	}
	return nil
}

// Close terminates the session. Closing a session that is already gone
// succeeds.
func (g *GatewayTransport) Close(ctx context.Context, conn connectiondao.Connection) error {
	_, err := g.client(conn).DeleteConnectionWithContext(ctx, &apigatewaymanagementapi.DeleteConnectionInput{
		ConnectionId: aws.String(conn.ConnectionID),
	})
	if err == nil {
		return nil
	}
	err = classify(fmt.Errorf("closing connection %v: %w", conn.ConnectionID, err))
	if errors.Is(err, ErrGone) {
		return nil
	}
	return err
}

func (g *GatewayTransport) Alive(ctx context.Context, conn connectiondao.Connection) (bool, error) {
	_, err := g.client(conn).GetConnectionWithContext(ctx, &apigatewaymanagementapi.GetConnectionInput{
		ConnectionId: aws.String(conn.ConnectionID),
	})
	if err == nil {
		return true, nil
	}
	err = classify(fmt.Errorf("probing connection %v: %w", conn.ConnectionID, err))
	if errors.Is(err, ErrGone) {
		return false, nil
	}
	return false, err
}

func (g *GatewayTransport) client(conn connectiondao.Connection) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	endpoint := conn.Endpoint
	if g.Endpoint != "" {
		endpoint = g.Endpoint
	}

	g.mgmtMu.RLock()
	if client, ok := g.mgmtClients[endpoint]; ok {
		g.mgmtMu.RUnlock()
		return client
	}
	g.mgmtMu.RUnlock()

	g.mgmtMu.Lock()
	defer g.mgmtMu.Unlock()

	if client, ok := g.mgmtClients[endpoint]; ok {
		return client
	}
	if g.mgmtClients == nil {
		g.mgmtClients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}
	client := g.newClient(endpoint)
	g.mgmtClients[endpoint] = client
	return client
}

// classify maps management API errors onto the Transport contract.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}

	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	switch aerr.Code() {
	case request.CanceledErrorCode:
		// the SDK reports an expired context as a canceled request
		if errors.Is(aerr.OrigErr(), context.DeadlineExceeded) {
			return Transient(err)
		}
		return err
	case apigatewaymanagementapi.ErrCodeGoneException:
		return fmt.Errorf("%w: %v", ErrGone, err)
	case apigatewaymanagementapi.ErrCodeLimitExceededException:
		return Transient(err)
	}

	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) {
		switch {
		case rerr.StatusCode() == 410:
			return fmt.Errorf("%w: %v", ErrGone, err)
		case rerr.StatusCode() == 429, rerr.StatusCode() >= 500:
			return Transient(err)
		}
	}
	if request.IsErrorRetryable(aerr) || request.IsErrorThrottle(aerr) {
		return Transient(err)
	}
	return err
}
