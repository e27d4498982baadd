// Package notifyrest provides REST API utilities with CORS support and common
// middleware, for the publish API and the local websocket gateway.
package notifyrest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

func Middlewares(service notifycli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(notifycli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

// Webserver serves routes locally in console mode, and as an API Gateway
// REST lambda otherwise.
func Webserver(service notifycli.Service, routes chi.Router) error {
	logger := notifycli.Logger(service)

	if notifycli.CommonOpts.Console {
		logger.Info().Int("port", notifycli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", notifycli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, notifycli.CommonOpts.Env))
	return nil
}

// JSON writes v as the response body.
func JSON(w http.ResponseWriter, req *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(req.Context()).Warn().Err(err).Msg("unable to write response")
	}
}

// Error writes a JSON error body.
func Error(w http.ResponseWriter, req *http.Request, status int, err error) {
	JSON(w, req, status, map[string]string{"error": err.Error()})
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
