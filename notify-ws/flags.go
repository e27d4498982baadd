package notifyws

import (
	"time"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/urfave/cli/v2"
)

var WSOpts struct {
	GatewayEndpoint string
	ConnTTL         time.Duration
	PushTimeout     time.Duration
	PushAttempts    int
	Concurrency     int
	RegistryTimeout time.Duration
}

var GatewayEndpointFlag = notifycli.StringFlag("gateway-endpoint", "Override the websocket management API endpoint", &WSOpts.GatewayEndpoint)
var ConnTTLFlag = notifycli.DurationFlag("conn-ttl", "How long a connection record lives without a disconnect", &WSOpts.ConnTTL, 2*time.Hour)
var PushTimeoutFlag = notifycli.DurationFlag("push-timeout", "Timeout for a single push attempt", &WSOpts.PushTimeout, defaultPushTimeout)
var PushAttemptsFlag = notifycli.IntFlag("push-attempts", "Push attempts per connection before dropping a notification", &WSOpts.PushAttempts, defaultMaxAttempts)
var RegistryTimeoutFlag = notifycli.DurationFlag("registry-timeout", "Timeout for a single connection registry call", &WSOpts.RegistryTimeout, defaultRegistryTimeout)
var ConcurrencyFlag = notifycli.IntFlag("concurrency", "Max concurrent pushes per event", &WSOpts.Concurrency, defaultConcurrency)

var WSFlags = []cli.Flag{
	GatewayEndpointFlag,
	ConnTTLFlag,
	PushTimeoutFlag,
	PushAttemptsFlag,
	ConcurrencyFlag,
	RegistryTimeoutFlag,
}
