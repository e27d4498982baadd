package notifyws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/tj/assert"
)

type fakeManagementAPI struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	err      error
	endpoint string
	posted   []string
	deleted  []string
}

func (f *fakeManagementAPI) PostToConnectionWithContext(_ aws.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.posted = append(f.posted, aws.StringValue(in.ConnectionId))
	return &apigatewaymanagementapi.PostToConnectionOutput{}, f.err
}

func (f *fakeManagementAPI) DeleteConnectionWithContext(_ aws.Context, in *apigatewaymanagementapi.DeleteConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.DeleteConnectionOutput, error) {
	f.deleted = append(f.deleted, aws.StringValue(in.ConnectionId))
	return &apigatewaymanagementapi.DeleteConnectionOutput{}, f.err
}

func (f *fakeManagementAPI) GetConnectionWithContext(_ aws.Context, _ *apigatewaymanagementapi.GetConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.GetConnectionOutput, error) {
	return &apigatewaymanagementapi.GetConnectionOutput{}, f.err
}

func newTestTransport(err error) (*GatewayTransport, map[string]*fakeManagementAPI) {
	clients := map[string]*fakeManagementAPI{}
	g := NewGatewayTransport("")
	g.newClient = func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
		c := &fakeManagementAPI{err: err, endpoint: endpoint}
		clients[endpoint] = c
		return c
	}
	return g, clients
}

func goneErr() error {
	return awserr.NewRequestFailure(awserr.New(apigatewaymanagementapi.ErrCodeGoneException, "gone", nil), 410, "req-1")
}

func TestGatewayTransport(t *testing.T) {
	ctx := context.Background()
	conn := connectiondao.Connection{UserID: "U", ConnectionID: "A", Endpoint: "https://abc.example.com/prod"}

	t.Run("push uses the registered endpoint", func(t *testing.T) {
		g, clients := newTestTransport(nil)
		assert.NoError(t, g.Push(ctx, conn, []byte(`{}`)))
		assert.NoError(t, g.Push(ctx, conn, []byte(`{}`)))
		assert.Len(t, clients, 1)
		assert.Equal(t, []string{"A", "A"}, clients["https://abc.example.com/prod"].posted)
	})

	t.Run("endpoint override", func(t *testing.T) {
		g, clients := newTestTransport(nil)
		g.Endpoint = "http://localhost:3001"
		assert.NoError(t, g.Push(ctx, conn, []byte(`{}`)))
		assert.Len(t, clients["http://localhost:3001"].posted, 1)
	})

	t.Run("gone", func(t *testing.T) {
		g, _ := newTestTransport(goneErr())
		err := g.Push(ctx, conn, []byte(`{}`))
		assert.True(t, errors.Is(err, ErrGone))
		assert.False(t, IsTransient(err))
	})

	t.Run("throttled is transient", func(t *testing.T) {
		g, _ := newTestTransport(awserr.NewRequestFailure(awserr.New(apigatewaymanagementapi.ErrCodeLimitExceededException, "slow down", nil), 429, "req-2"))
		err := g.Push(ctx, conn, []byte(`{}`))
		assert.True(t, IsTransient(err))
		assert.False(t, errors.Is(err, ErrGone))
	})

	t.Run("server error is transient", func(t *testing.T) {
		g, _ := newTestTransport(awserr.NewRequestFailure(awserr.New("InternalServerError", "oops", nil), 500, "req-3"))
		assert.True(t, IsTransient(g.Push(ctx, conn, []byte(`{}`))))
	})

	t.Run("forbidden is permanent", func(t *testing.T) {
		g, _ := newTestTransport(awserr.NewRequestFailure(awserr.New(apigatewaymanagementapi.ErrCodeForbiddenException, "no", nil), 403, "req-4"))
		err := g.Push(ctx, conn, []byte(`{}`))
		assert.Error(t, err)
		assert.False(t, IsTransient(err))
		assert.False(t, errors.Is(err, ErrGone))
	})

	t.Run("closing a gone connection succeeds", func(t *testing.T) {
		g, clients := newTestTransport(goneErr())
		assert.NoError(t, g.Close(ctx, conn))
		assert.Equal(t, []string{"A"}, clients[conn.Endpoint].deleted)
	})

	t.Run("alive", func(t *testing.T) {
		g, _ := newTestTransport(nil)
		alive, err := g.Alive(ctx, conn)
		assert.NoError(t, err)
		assert.True(t, alive)

		g, _ = newTestTransport(goneErr())
		alive, err = g.Alive(ctx, conn)
		assert.NoError(t, err)
		assert.False(t, alive)
	})
}

func TestGatewayTransportTimeouts(t *testing.T) {
	ctx := context.Background()
	conn := connectiondao.Connection{UserID: "U", ConnectionID: "A", Endpoint: "https://abc.example.com/prod"}

	t.Run("expired request context is transient", func(t *testing.T) {
		g, _ := newTestTransport(awserr.New(request.CanceledErrorCode, "request context canceled", context.DeadlineExceeded))
		err := g.Push(ctx, conn, []byte(`{}`))
		assert.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("canceled request context is permanent", func(t *testing.T) {
		g, _ := newTestTransport(awserr.New(request.CanceledErrorCode, "request context canceled", context.Canceled))
		err := g.Push(ctx, conn, []byte(`{}`))
		assert.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("sdk retries are off", func(t *testing.T) {
		config := managementConfig("https://abc.example.com/prod")
		assert.Equal(t, 0, aws.IntValue(config.MaxRetries))
		assert.Equal(t, "https://abc.example.com/prod", aws.StringValue(config.Endpoint))
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("nope")))
	assert.True(t, IsTransient(Transient(errors.New("later"))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.Nil(t, Transient(nil))
}
