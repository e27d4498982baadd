package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyproducer "github.com/pubsub-social/notify-go/notify-producer"
	notifyrest "github.com/pubsub-social/notify-go/notify-rest"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/pubsub-social/notify-go/notify-ws/localgw"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var opts struct {
	SweepInterval time.Duration
}

var service = notifycli.NewService("notify-local")

// localRegion names the region when none is configured; DynamoDB Local
// accepts any region.
const localRegion = "local"

func main() {
	flags := append(notifycli.CommonFlags, notifycli.PortFlag(5001))
	flags = append(flags, notifyddb.DDBFlags...)
	flags = append(flags, notifyws.WSFlags...)
	flags = append(flags, notifyproducer.DBFlags...)
	flags = append(flags, notifycli.DurationFlag("sweep-interval", "How often to sweep stale connections", &opts.SweepInterval, time.Minute))

	app := notifycli.App(service, action, flags...)
	app.Before = func(c *cli.Context) error {
		notifycli.CommonOpts.Console = true
		if notifycli.CommonOpts.Region == "" {
			notifycli.CommonOpts.Region = localRegion
		}
		return notifycli.InitCommonOpts(c)
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

// action runs the whole pipeline in one process: a websocket gateway, the
// registry on DynamoDB (Local), an in-process bus, and the publish API.
func action(_ *cli.Context) error {
	logger := notifycli.Logger(service)
	region := notifycli.CommonOpts.Region

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := notifyws.BuildRegistry(notifyws.Session())
	if err != nil {
		return err
	}
	if err := registry.Table().CreateTableIfNotExists(ctx); err != nil {
		return fmt.Errorf("unable to create connection registry %v: %w", notifyws.RegistryTableName(), err)
	}

	gateway := localgw.New(nil, logger)
	handler := notifyws.NewHandler(registry, gateway, logger)
	gateway.SetHandler(handler.HandleEvent)
	dispatcher := notifyws.NewDispatcher(registry, gateway, logger)

	bus := &notifybus.LocalBus{Region: region}
	router := notifybus.NewRouter(region, bus, dispatcher, nil, logger)
	bus.Attach(router)

	producer := &notifyproducer.Producer{Bus: router, Logger: logger}
	if dsn, err := notifyproducer.DSN(); err == nil {
		followers, err := notifyproducer.NewPostgresFollowers(ctx, dsn)
		if err != nil {
			return err
		}
		defer followers.Close()
		producer.Followers = followers
	} else {
		logger.Warn().Err(err).Msg("no follower database, post fan-out disabled")
	}

	routes := notifyrest.Middlewares(service, chi.NewRouter())
	gateway.Routes(routes)
	producer.Routes(routes)

	janitor := &notifyws.Janitor{
		Connections: registry,
		Transport:   gateway,
		Logger:      logger,
		Concurrency: notifyws.WSOpts.Concurrency,
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%v", notifycli.CommonOpts.Port),
		Handler: routes,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Int("port", notifycli.CommonOpts.Port).Msg("starting local gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	})
	group.Go(func() error {
		if opts.SweepInterval <= 0 {
			return nil
		}
		ticker := time.NewTicker(opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := janitor.Sweep(ctx); err != nil {
					logger.Warn().Err(err).Msg("sweep failed")
				}
			}
		}
	})
	return group.Wait()
}
