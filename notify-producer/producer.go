package notifyproducer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Publisher accepts events for the bus; notifybus.Router satisfies it.
type Publisher interface {
	Publish(ctx context.Context, e notifybus.Event) error
}

// FollowerSource resolves who hears about a user's new posts.
type FollowerSource interface {
	Friends(ctx context.Context, userID string) ([]string, error)
}

type Producer struct {
	Bus       Publisher
	Followers FollowerSource
	Logger    zerolog.Logger
	FanOut    int // max concurrent publishes for a post's friends (default 10)
}

// PostAdded notifies each of the poster's friends. It returns how many
// events were published.
func (p *Producer) PostAdded(ctx context.Context, post PostAdded) (int, error) {
	if p.Followers == nil {
		return 0, fmt.Errorf("no follower source configured")
	}
	friends, err := p.Followers.Friends(ctx, post.UserID)
	if err != nil {
		return 0, fmt.Errorf("unable to find friends of user %v: %w", post.UserID, err)
	}

	post.EventType = notifybus.EventPostAdded
	fanOut := p.FanOut
	if fanOut <= 0 {
		fanOut = 10
	}

	var (
		g         errgroup.Group
		published atomic.Int64
	)
	g.SetLimit(fanOut)
	for _, friend := range friends {
		friend := friend
		if friend == post.UserID {
			continue
		}
		g.Go(func() error {
			ok, err := p.publish(ctx, notifybus.SourcePosts, post.EventType, friend, post.UserID, post)
			if ok {
				published.Add(1)
			}
			return err
		})
	}
	err = g.Wait()
	return int(published.Load()), err
}

// CommentAdded notifies the post's author, unless they wrote the comment.
func (p *Producer) CommentAdded(ctx context.Context, comment CommentAdded) (int, error) {
	comment.EventType = notifybus.EventCommentAdded
	comment.CommentBody = Preview(comment.CommentBody)
	return p.count(p.publish(ctx, notifybus.SourceComments, comment.EventType, comment.PostUserID, comment.CommentUserID, comment))
}

// SubCommentAdded notifies the parent comment's author and, as for any
// comment, the post's author. Nobody is notified of their own reply.
func (p *Producer) SubCommentAdded(ctx context.Context, reply SubCommentAdded) (int, error) {
	published := 0
	if reply.PostUserID != "" {
		n, err := p.CommentAdded(ctx, CommentAdded{
			PostID:              reply.PostID,
			CommentID:           reply.ChildCommentID,
			PostUserID:          reply.PostUserID,
			CommentUserID:       reply.ChildCommentUserID,
			CommentUserUsername: reply.ChildCommentUserUsername,
			CommentCreatedAt:    reply.ChildCommentCreatedAt,
			CommentBody:         reply.ChildCommentBody,
		})
		if err != nil {
			return n, err
		}
		published += n
	}

	reply.EventType = notifybus.EventSubCommentAdded
	reply.ChildCommentBody = Preview(reply.ChildCommentBody)
	n, err := p.count(p.publish(ctx, notifybus.SourceComments, reply.EventType, reply.ParentCommentUserID, reply.ChildCommentUserID, reply))
	return published + n, err
}

func (p *Producer) PostLike(ctx context.Context, like PostLike) (int, error) {
	like.EventType = notifybus.EventPostLike
	return p.count(p.publish(ctx, notifybus.SourceLikes, like.EventType, like.PostUserID, like.PostLikeUserID, like))
}

func (p *Producer) CommentLike(ctx context.Context, like CommentLike) (int, error) {
	like.EventType = notifybus.EventCommentLike
	return p.count(p.publish(ctx, notifybus.SourceLikes, like.EventType, like.CommentUserID, like.CommentLikeUserID, like))
}

// publish reports whether an event was published. Self-notifications are
// suppressed.
func (p *Producer) publish(ctx context.Context, source, eventType, target, actor string, payload interface{}) (bool, error) {
	if target == "" || target == actor {
		p.Logger.Debug().Str("event_type", eventType).Str("user_id", target).Msg("nothing to notify")
		return false, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshalling %v payload: %w", eventType, err)
	}
	err = p.Bus.Publish(ctx, notifybus.Event{
		EventType:    eventType,
		Source:       source,
		TargetUserID: target,
		Payload:      data,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Producer) count(ok bool, err error) (int, error) {
	if ok {
		return 1, err
	}
	return 0, err
}
