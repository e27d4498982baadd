package main

import (
	"log"
	"os"

	"github.com/aws/aws-sdk-go/service/cloudwatch"
	notifybus "github.com/pubsub-social/notify-go/notify-bus"
	"github.com/pubsub-social/notify-go/notify-bus/publish"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	notifyws "github.com/pubsub-social/notify-go/notify-ws"
	"github.com/urfave/cli/v2"
)

var service = notifycli.NewService("notify-dispatch")

func main() {
	flags := append(notifycli.CommonFlags, notifyddb.DDBFlags...)
	flags = append(flags, notifyws.WSFlags...)
	flags = append(flags, notifybus.BusFlags...)

	app := notifycli.App(service, action, flags...)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	if err := notifybus.ValidateReplication(); err != nil {
		return err
	}

	logger := notifycli.Logger(service)
	s := notifyws.Session()
	metrics := notifycli.NewMetrics(service, cloudwatch.New(s))

	registry, err := notifyws.BuildRegistry(s)
	if err != nil {
		return err
	}
	dispatcher := notifyws.NewDispatcher(registry, notifyws.NewGatewayTransport(notifyws.WSOpts.GatewayEndpoint), logger)
	dispatcher.Metrics = metrics

	opts := notifycli.CommonOpts
	targets := notifybus.Targets(opts.Region, notifybus.BusOpts.PeerRegions.Value(), opts.Account, publish.BusName(opts.Env), opts.Production)

	var replicator notifybus.Replicator
	if len(targets) > 0 {
		rr := notifybus.NewRegionReplicator(opts.Region, targets, func(target notifybus.ReplicationTarget) notifybus.Sender {
			return publish.ForTarget(target)
		}, logger)
		rr.Metrics = metrics
		replicator = rr
		logger.Info().Int("peers", len(targets)).Msg("replicating global events")
	}

	var bus notifybus.Sender = publish.Build(opts.Env, opts.Region)
	if opts.Dry {
		bus = publish.Dry{Logger: logger}
	}
	router := notifybus.NewRouter(opts.Region, bus, dispatcher, replicator, logger)

	return notifybus.NewHandler(service, router).Start()
}
