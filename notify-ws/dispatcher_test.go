package notifyws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func newTestDispatcher(registry Registry, transport Transport) *Dispatcher {
	return &Dispatcher{
		Registry:    registry,
		Transport:   transport,
		Logger:      zerolog.Nop(),
		PushTimeout: time.Second,
		Backoff:     time.Millisecond,
	}
}

// hangingRegistry blocks ListByUser until the call's context ends, for the
// first hangs calls (every call when hangs is negative).
type hangingRegistry struct {
	*memRegistry
	mu    sync.Mutex
	hangs int
	calls int
}

func (h *hangingRegistry) ListByUser(ctx context.Context, userID string) ([]connectiondao.Connection, error) {
	h.mu.Lock()
	h.calls++
	hang := h.hangs != 0
	if h.hangs > 0 {
		h.hangs--
	}
	h.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, &connectiondao.Error{Op: "list", UserID: userID, Err: awserr.New(request.CanceledErrorCode, "request context canceled", ctx.Err())}
	}
	return h.memRegistry.ListByUser(ctx, userID)
}

func (h *hangingRegistry) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// sdkTimeoutTransport fails every push the way the management API client
// does when the request context expires.
type sdkTimeoutTransport struct {
	*fakeTransport
}

func (s sdkTimeoutTransport) Push(ctx context.Context, conn connectiondao.Connection, payload []byte) error {
	s.fakeTransport.mu.Lock()
	s.fakeTransport.pushes[conn.ConnectionID]++
	s.fakeTransport.mu.Unlock()

	<-ctx.Done()
	return awserr.New(request.CanceledErrorCode, "request context canceled", ctx.Err())
}

func twoConnections() *memRegistry {
	return newMemRegistry(
		connectiondao.Connection{UserID: "U", ConnectionID: "A"},
		connectiondao.Connection{UserID: "U", ConnectionID: "B"},
		connectiondao.Connection{UserID: "V", ConnectionID: "C"},
	)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"commentId":1}`)

	t.Run("pushes once to each connection", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{Connections: 2, Delivered: 2}, report)
		assert.Equal(t, 1, transport.pushCount("A"))
		assert.Equal(t, 1, transport.pushCount("B"))
		assert.Equal(t, 0, transport.pushCount("C"))
		assert.Equal(t, string(payload), string(transport.payloads["A"]))
		assert.Len(t, registry.removed(), 0)
	})

	t.Run("gone connection is removed once and the rest still delivered", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		transport.results["A"] = []error{ErrGone}
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{Connections: 2, Delivered: 1, Gone: 1}, report)
		assert.Equal(t, 1, transport.pushCount("A"))
		assert.Equal(t, 1, transport.pushCount("B"))
		assert.Equal(t, []string{"A"}, registry.removed())
		assert.Equal(t, []string{"B"}, registry.ids("U"))
	})

	t.Run("no connections means no pushes", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "offline", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{}, report)
		assert.Equal(t, 0, transport.totalPushes())
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		transport.results["A"] = []error{Transient(errors.New("throttled"))}
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, 2, report.Delivered)
		assert.Equal(t, 2, transport.pushCount("A"))
	})

	t.Run("exhausted retries drop only that connection", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		boom := Transient(errors.New("throttled"))
		transport.results["A"] = []error{boom, boom, boom, boom}
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{Connections: 2, Delivered: 1, Dropped: 1}, report)
		assert.Equal(t, 3, transport.pushCount("A"))
		assert.Equal(t, 1, transport.pushCount("B"))
		assert.Len(t, registry.removed(), 0)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		transport.results["A"] = []error{errors.New("payload too large")}
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Dropped)
		assert.Equal(t, 1, transport.pushCount("A"))
		assert.Len(t, registry.removed(), 0)
	})

	t.Run("push timeout counts as transient", func(t *testing.T) {
		registry := twoConnections()
		transport := newFakeTransport()
		transport.block["A"] = true
		d := newTestDispatcher(registry, transport)
		d.PushTimeout = 10 * time.Millisecond
		d.MaxAttempts = 2

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{Connections: 2, Delivered: 1, Dropped: 1}, report)
		assert.Equal(t, 2, transport.pushCount("A"))
	})

	t.Run("sdk timeout is retried", func(t *testing.T) {
		transport := sdkTimeoutTransport{newFakeTransport()}
		d := newTestDispatcher(newMemRegistry(connectiondao.Connection{UserID: "U", ConnectionID: "A"}), transport)
		d.PushTimeout = 10 * time.Millisecond

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, Report{Connections: 1, Dropped: 1}, report)
		assert.Equal(t, 3, transport.pushCount("A"))
	})

	t.Run("hung registry read is retried", func(t *testing.T) {
		registry := &hangingRegistry{memRegistry: twoConnections(), hangs: 1}
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)
		d.RegistryTimeout = 10 * time.Millisecond

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, 2, report.Delivered)
		assert.Equal(t, 2, registry.callCount())
	})

	t.Run("registry that never answers gives up", func(t *testing.T) {
		registry := &hangingRegistry{memRegistry: twoConnections(), hangs: -1}
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)
		d.RegistryTimeout = 10 * time.Millisecond

		start := time.Now()
		_, err := d.Dispatch(ctx, "U", payload)
		assert.Error(t, err)
		assert.True(t, time.Since(start) < 5*time.Second)
		assert.Equal(t, 3, registry.callCount())
		assert.Equal(t, 0, transport.totalPushes())
	})

	t.Run("retryable registry errors are retried", func(t *testing.T) {
		registry := twoConnections()
		registry.listErrs = []error{&connectiondao.Error{
			Op:     "list",
			UserID: "U",
			Err:    awserr.New("ProvisionedThroughputExceededException", "slow down", nil),
		}}
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)

		report, err := d.Dispatch(ctx, "U", payload)
		assert.NoError(t, err)
		assert.Equal(t, 2, report.Delivered)
	})

	t.Run("registry failure is returned", func(t *testing.T) {
		registry := twoConnections()
		registry.listErrs = []error{&connectiondao.Error{
			Op:     "list",
			UserID: "U",
			Err:    awserr.New("ValidationException", "bad key", nil),
		}}
		transport := newFakeTransport()
		d := newTestDispatcher(registry, transport)

		_, err := d.Dispatch(ctx, "U", payload)
		assert.Error(t, err)
		assert.Equal(t, 0, transport.totalPushes())
	})
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[notifycli.MetricName]int
	timed  int
}

func (f *fakeRecorder) Count(_ context.Context, name notifycli.MetricName, n int, _ ...map[notifycli.DimensionName]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[notifycli.MetricName]int{}
	}
	f.counts[name] += n
}

func (f *fakeRecorder) Timing(context.Context, notifycli.MetricName, time.Time, ...map[notifycli.DimensionName]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timed++
}

func TestDeliver(t *testing.T) {
	registry := twoConnections()
	transport := newFakeTransport()
	transport.results["B"] = []error{ErrGone}
	recorder := &fakeRecorder{}
	d := newTestDispatcher(registry, transport)
	d.Metrics = recorder

	err := d.Deliver(context.Background(), notifybus.Event{
		EventType:    "CommentCreated",
		Source:       notifybus.SourceComments,
		TargetUserID: "U",
		Payload:      json.RawMessage(`{"postId":1}`),
	})
	assert.NoError(t, err)
	assert.Equal(t, `{"postId":1}`, string(transport.payloads["A"]))
	assert.Equal(t, 1, recorder.counts[notifycli.NotificationDeliveredMetric])
	assert.Equal(t, 1, recorder.counts[notifycli.ConnectionGoneMetric])
	assert.Equal(t, 1, recorder.timed)
	assert.Equal(t, []string{"A"}, registry.ids("U"))
}
