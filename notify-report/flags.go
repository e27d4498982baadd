package notifyreport

import (
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/urfave/cli/v2"
)

var ReportOpts struct {
	Bucket string

	OutFile string
	Latest  bool
}

var BucketFlag = notifycli.StringFlag("bucket", "The bucket snapshots are written to", &ReportOpts.Bucket)
var OutFileFlag = notifycli.StringFlag("out-file", "Write the snapshot to this file instead of the bucket", &ReportOpts.OutFile)
var LatestFlag = notifycli.BoolFlag("latest", "Print the most recent snapshot instead of taking a new one", &ReportOpts.Latest)

var ReportFlags = []cli.Flag{
	BucketFlag,
	OutFileFlag,
	LatestFlag,
}
