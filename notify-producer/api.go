package notifyproducer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	notifyrest "github.com/pubsub-social/notify-go/notify-rest"
	"github.com/rs/zerolog"
)

// Routes mounts the publish API:
//
//	POST /events                   a fully resolved notification event
//	POST /activity/posts           PostAdded
//	POST /activity/comments        CommentAdded
//	POST /activity/replies         SubCommentAdded
//	POST /activity/post-likes      PostLike
//	POST /activity/comment-likes   CommentLike
func (p *Producer) Routes(routes chi.Router) chi.Router {
	routes.Post("/events", p.handleEvent)
	routes.Route("/activity", func(r chi.Router) {
		r.Post("/posts", activity(p.PostAdded))
		r.Post("/comments", activity(p.CommentAdded))
		r.Post("/replies", activity(p.SubCommentAdded))
		r.Post("/post-likes", activity(p.PostLike))
		r.Post("/comment-likes", activity(p.CommentLike))
	})
	return routes
}

type published struct {
	Published int `json:"published"`
}

func (p *Producer) handleEvent(w http.ResponseWriter, req *http.Request) {
	var e notifybus.Event
	if err := json.NewDecoder(req.Body).Decode(&e); err != nil {
		notifyrest.Error(w, req, http.StatusBadRequest, fmt.Errorf("invalid event: %w", err))
		return
	}
	if err := p.Bus.Publish(req.Context(), e); err != nil {
		respondPublishError(w, req, err)
		return
	}
	notifyrest.JSON(w, req, http.StatusAccepted, published{Published: 1})
}

func activity[T any](fn func(context.Context, T) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var v T
		if err := json.NewDecoder(req.Body).Decode(&v); err != nil {
			notifyrest.Error(w, req, http.StatusBadRequest, fmt.Errorf("invalid activity: %w", err))
			return
		}
		n, err := fn(req.Context(), v)
		if err != nil {
			respondPublishError(w, req, err)
			return
		}
		notifyrest.JSON(w, req, http.StatusAccepted, published{Published: n})
	}
}

func respondPublishError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, notifybus.ErrInvalidEvent) {
		notifyrest.Error(w, req, http.StatusBadRequest, err)
		return
	}
	zerolog.Ctx(req.Context()).Error().Err(err).Msg("unable to publish")
	notifyrest.Error(w, req, http.StatusBadGateway, errors.New("unable to publish"))
}
