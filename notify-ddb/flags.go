package notifyddb

import (
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	Endpoint   string
	TableName  string
}

var DAXClusterFlag = notifycli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var EndpointFlag = notifycli.StringFlag("dynamodb-endpoint", "Override the DynamoDB endpoint, e.g. DynamoDB Local", &DDBOpts.Endpoint)
var TableNameFlag = notifycli.StringFlag("table-name", "The connection registry table name; derived from --env when empty", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	EndpointFlag,
	TableNameFlag,
}
