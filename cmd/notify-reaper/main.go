package main

import (
	"log"
	"os"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-reaper")

func main() {
	app := notifycli.App(
		service,
		action,
		append(
			append(notifycli.CommonFlags, notifyddb.DDBFlags...),
			notifyws.GatewayEndpointFlag,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

// action closes gateway connections whose registry records were removed,
// including records expired by the table TTL.
func action(_ *cli.Context) error {
	reaper := &notifyws.Reaper{
		Transport: notifyws.NewGatewayTransport(notifyws.WSOpts.GatewayEndpoint),
		Logger:    notifycli.Logger(service),
	}
	handler := notifyddb.NewHandler(service, nil, reaper.OnRemove)

	return handler.Start(notifyws.RegistryTableName())
}
