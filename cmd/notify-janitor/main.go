package main

import (
	"context"
	"log"
	"os"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifycron "github.com/pubsub-social/notify-go/notify-cron"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-janitor")

func main() {
	app := notifycli.App(
		service,
		action,
		append(
			append(notifycli.CommonFlags, notifyddb.DDBFlags...),
			notifyws.GatewayEndpointFlag,
			notifyws.ConcurrencyFlag,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	registry, err := notifyws.BuildRegistry(notifyws.Session())
	if err != nil {
		return err
	}
	janitor := &notifyws.Janitor{
		Connections: registry,
		Transport:   notifyws.NewGatewayTransport(notifyws.WSOpts.GatewayEndpoint),
		Logger:      notifycli.Logger(service),
		Concurrency: notifyws.WSOpts.Concurrency,
		Dry:         notifycli.CommonOpts.Dry,
	}
	handler := notifycron.NewHandler(service, func(ctx context.Context) error {
		_, err := janitor.Sweep(ctx)
		return err
	})

	return handler.Start()
}
