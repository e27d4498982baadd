package notifybus

import (
	"fmt"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/urfave/cli/v2"
)

var BusOpts struct {
	BusName     string
	PeerRegions cli.StringSlice
	StreamName  string
}

var BusNameFlag = notifycli.StringFlag("bus-name", "The event bus name; derived from --env when empty", &BusOpts.BusName)
var PeerRegionsFlag = notifycli.StringSliceFlag("peer-regions", "Regions to replicate global events to, when --production is set", &BusOpts.PeerRegions)
var StreamNameFlag = notifycli.StringFlag("stream-name", "The kinesis stream the bus mirrors events into, tailed in console mode", &BusOpts.StreamName)

var BusFlags = []cli.Flag{
	BusNameFlag,
	PeerRegionsFlag,
	StreamNameFlag,
}

// ValidateReplication fails when replication is enabled but peer bus ARNs
// can't be built.
func ValidateReplication() error {
	if !notifycli.CommonOpts.Production || len(BusOpts.PeerRegions.Value()) == 0 {
		return nil
	}
	if notifycli.CommonOpts.Account == "" {
		return notifycli.MissingOption("account")
	}
	if notifycli.CommonOpts.Region == "" {
		return notifycli.MissingOption("region")
	}
	return nil
}

// MirrorStreamName returns the kinesis stream the bus rule mirrors events to.
func MirrorStreamName(env string) string {
	if BusOpts.StreamName != "" {
		return BusOpts.StreamName
	}
	return fmt.Sprintf("%v-notify-events--mirror", env)
}
