package main

import (
	"context"
	"log"
	"os"
	"time"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyreport "github.com/pubsub-social/notify-go/notify-report"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-stats")

func main() {
	app := notifycli.App(
		service,
		action,
		append(
			append(notifycli.CommonFlags, notifyddb.DDBFlags...),
			notifyreport.ReportFlags...,
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
	handler := notifyreport.NewHandler(service, "registry", func(ctx context.Context) (interface{}, error) {
		return notifyws.CollectStats(ctx, registry, time.Now())
	})

	return handler.Start()
}
