package main

import (
	"errors"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-connect")

func main() {
	app := notifycli.App(
		service,
		action,
		append(
			append(notifycli.CommonFlags, notifyddb.DDBFlags...),
			notifyws.WSFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	if notifycli.CommonOpts.Console {
		return errors.New("notify-connect only runs behind the websocket gateway; use notify-local to run locally")
	}

	logger := notifycli.Logger(service)
	registry, err := notifyws.BuildRegistry(notifyws.Session())
	if err != nil {
		return err
	}
	transport := notifyws.NewGatewayTransport(notifyws.WSOpts.GatewayEndpoint)
	handler := notifyws.NewHandler(registry, transport, logger)

	lambda.Start(handler.HandleEvent)
	return nil
}
