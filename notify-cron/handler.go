// Package notifycron provides utilities for building scheduled Lambda functions.
package notifycron

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service notifycli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service notifycli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  notifycli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	ctx = h.logger.WithContext(ctx)
	start := time.Now()
	h.logger.Info().Msg("running scheduled task")
	if err := h.runOnce(ctx); err != nil {
		h.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled task failed")
		return err
	}
	h.logger.Info().Dur("elapsed", time.Since(start)).Msg("scheduled task finished")
	return nil
}

func (h *Handler) Start() error {
	switch {
	case notifycli.CommonOpts.Console:
		return h.RunOnce(context.Background(), nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
