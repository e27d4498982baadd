// Package notifybus routes notification events published to the shared event
// bus: it evaluates the static subscription rules, hands matching events to the
// local dispatcher and, for globally relevant events, to the cross-region
// replicator.
package notifybus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

const (
	EventPostAdded       = "PostAdded"
	EventCommentAdded    = "CommentAdded"
	EventSubCommentAdded = "SubCommentAdded"
	EventPostLike        = "PostLike"
	EventCommentLike     = "CommentLike"
)

const (
	SourcePosts    = "posts"
	SourceComments = "comments"
	SourceLikes    = "likes"
)

// ErrInvalidEvent is returned for events that don't carry the fixed envelope.
var ErrInvalidEvent = errors.New("invalid notification event")

// Event is a notification event as it travels over the bus. TargetUserID is
// resolved by the producer; Payload is forwarded to clients verbatim.
type Event struct {
	EventType    string          `json:"eventType"`
	Source       string          `json:"source"`
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
	OriginRegion string          `json:"originRegion,omitempty"`
}

// Detail is the EventBridge detail document. The event type and source travel
// as the EventBridge detail-type and source, so rules can match on them.
type Detail struct {
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
	OriginRegion string          `json:"originRegion,omitempty"`
}

func (e Event) Validate() error {
	switch {
	case e.EventType == "":
		return fmt.Errorf("%w: missing event type", ErrInvalidEvent)
	case e.Source == "":
		return fmt.Errorf("%w: missing source", ErrInvalidEvent)
	case e.TargetUserID == "":
		return fmt.Errorf("%w: missing target user", ErrInvalidEvent)
	case len(e.Payload) == 0 || !json.Valid(e.Payload):
		return fmt.Errorf("%w: payload must be a json document", ErrInvalidEvent)
	}
	return nil
}

// Detail returns the bus detail document for the event.
func (e Event) Detail() ([]byte, error) {
	return json.Marshal(Detail{
		TargetUserID: e.TargetUserID,
		Payload:      e.Payload,
		OriginRegion: e.OriginRegion,
	})
}

// FromCloudWatchEvent decodes an event delivered by an EventBridge rule.
func FromCloudWatchEvent(cwe events.CloudWatchEvent) (Event, error) {
	var detail Detail
	if err := json.Unmarshal(cwe.Detail, &detail); err != nil {
		return Event{}, fmt.Errorf("%w: unable to decode detail of %v: %v", ErrInvalidEvent, cwe.ID, err)
	}
	origin := detail.OriginRegion
	if origin == "" {
		origin = cwe.Region
	}
	e := Event{
		EventType:    cwe.DetailType,
		Source:       cwe.Source,
		TargetUserID: detail.TargetUserID,
		Payload:      detail.Payload,
		OriginRegion: origin,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
