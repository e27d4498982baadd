package main

import (
	"context"
	"log"
	"os"

	"github.com/go-chi/chi/v5"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	"github.com/pubsub-social/notify-go/notify-bus/publish"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyproducer "github.com/pubsub-social/notify-go/notify-producer"
	notifyrest "github.com/pubsub-social/notify-go/notify-rest"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-publish")

func main() {
	flags := append(notifycli.CommonFlags, notifycli.PortFlag(5002))
	flags = append(flags, notifybus.BusFlags...)
	flags = append(flags, notifyproducer.DBFlags...)

	app := notifycli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := notifycli.Logger(service)
	opts := notifycli.CommonOpts

	dsn, err := notifyproducer.DSN()
	if err != nil {
		return err
	}
	followers, err := notifyproducer.NewPostgresFollowers(context.Background(), dsn)
	if err != nil {
		return err
	}
	defer followers.Close()

	var bus notifybus.Sender = publish.Build(opts.Env, opts.Region)
	if opts.Dry {
		bus = publish.Dry{Logger: logger}
	}
	// routing happens in notify-dispatch once the bus invokes it
	router := notifybus.NewRouter(opts.Region, bus, nil, nil, logger)

	producer := &notifyproducer.Producer{
		Bus:       router,
		Followers: followers,
		Logger:    logger,
	}
	routes := notifyrest.Middlewares(service, chi.NewRouter())
	producer.Routes(routes)

	return notifyrest.Webserver(service, routes)
}
