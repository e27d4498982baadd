package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/eventbridge"
	"github.com/aws/aws-sdk-go/service/eventbridge/eventbridgeiface"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type fakeEventBridge struct {
	eventbridgeiface.EventBridgeAPI
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEventsWithContext(_ aws.Context, in *eventbridge.PutEventsInput, _ ...request.Option) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{FailedEntryCount: aws.Int64(0)}, nil
}

func likeEvent() notifybus.Event {
	return notifybus.Event{
		EventType:    notifybus.EventPostLike,
		Source:       notifybus.SourceLikes,
		TargetUserID: "42",
		Payload:      json.RawMessage(`{"postId":7}`),
		OriginRegion: "us-east-1",
	}
}

func TestSend(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		api := &fakeEventBridge{}
		assert.NoError(t, New(api, "dev-notify-events").Send(context.Background(), likeEvent()))
		assert.Len(t, api.inputs, 1)

		entry := api.inputs[0].Entries[0]
		assert.Equal(t, "dev-notify-events", aws.StringValue(entry.EventBusName))
		assert.Equal(t, notifybus.SourceLikes, aws.StringValue(entry.Source))
		assert.Equal(t, notifybus.EventPostLike, aws.StringValue(entry.DetailType))

		var detail notifybus.Detail
		assert.NoError(t, json.Unmarshal([]byte(aws.StringValue(entry.Detail)), &detail))
		assert.Equal(t, "42", detail.TargetUserID)
		assert.Equal(t, "us-east-1", detail.OriginRegion)
	})

	t.Run("rejected entry", func(t *testing.T) {
		api := &fakeEventBridge{out: &eventbridge.PutEventsOutput{
			FailedEntryCount: aws.Int64(1),
			Entries: []*eventbridge.PutEventsResultEntry{
				{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
			},
		}}
		err := New(api, "dev-notify-events").Send(context.Background(), likeEvent())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "InternalFailure")
	})

	t.Run("request failure", func(t *testing.T) {
		boom := errors.New("boom")
		err := New(&fakeEventBridge{err: boom}, "dev-notify-events").Send(context.Background(), likeEvent())
		assert.True(t, errors.Is(err, boom))
	})
}

func TestBusName(t *testing.T) {
	assert.Equal(t, "dev-notify-events", BusName("dev"))

	notifybus.BusOpts.BusName = "shared"
	defer func() { notifybus.BusOpts.BusName = "" }()
	assert.Equal(t, "shared", BusName("dev"))
}

func TestDry(t *testing.T) {
	assert.NoError(t, Dry{Logger: zerolog.Nop()}.Send(context.Background(), likeEvent()))
}
