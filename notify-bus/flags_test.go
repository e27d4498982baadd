package notifybus

import (
	"errors"
	"testing"

	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/tj/assert"
	"github.com/urfave/cli/v2"
)

func TestValidateReplication(t *testing.T) {
	saved := notifycli.CommonOpts
	defer func() {
		notifycli.CommonOpts = saved
		BusOpts.PeerRegions = cli.StringSlice{}
	}()

	BusOpts.PeerRegions = *cli.NewStringSlice("eu-west-1")

	notifycli.CommonOpts = notifycli.Options{Region: "us-east-1"}
	assert.NoError(t, ValidateReplication())

	notifycli.CommonOpts = notifycli.Options{Region: "us-east-1", Production: true}
	err := ValidateReplication()
	assert.True(t, errors.Is(err, notifycli.ErrMissingOption))
	assert.Contains(t, err.Error(), "--account")

	notifycli.CommonOpts = notifycli.Options{Region: "us-east-1", Account: "123", Production: true}
	assert.NoError(t, ValidateReplication())
}

func TestMirrorStreamName(t *testing.T) {
	assert.Equal(t, "dev-notify-events--mirror", MirrorStreamName("dev"))

	BusOpts.StreamName = "custom"
	defer func() { BusOpts.StreamName = "" }()
	assert.Equal(t, "custom", MirrorStreamName("dev"))
}
