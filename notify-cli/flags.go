package notifycli

import (
	"errors"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// Options holds the flags shared by every command.
type Options struct {
	Console    bool
	Dry        bool
	Env        string
	Region     string
	Account    string
	Production bool
	Port       int
}

var CommonOpts Options

// ErrMissingOption is returned when a required deployment parameter is absent.
var ErrMissingOption = errors.New("missing required option")

// Validate checks the options every command needs. Lambda mode needs a region
// to build AWS clients against; console mode falls back to the SDK defaults.
func (o *Options) Validate() error {
	if o.Env == "" {
		return MissingOption("env")
	}
	if !o.Console && o.Region == "" {
		return MissingOption("region")
	}
	return nil
}

// MissingOption wraps ErrMissingOption with the flag name.
func MissingOption(name string) error {
	return &optionError{name: name}
}

type optionError struct {
	name string
}

func (e *optionError) Error() string {
	return "missing required option --" + e.name
}

func (e *optionError) Unwrap() error {
	return ErrMissingOption
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "whether to actually push or persist anything",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var RegionFlag = cli.StringFlag{
	Name:        "region",
	Usage:       "the AWS region this deployment serves",
	EnvVars:     []string{"AWS_REGION"},
	Destination: &CommonOpts.Region,
}
var AccountFlag = cli.StringFlag{
	Name:        "account",
	Usage:       "the AWS account number, for building peer event bus ARNs",
	EnvVars:     []string{"AWS_ACCOUNT"},
	Destination: &CommonOpts.Account,
}
var ProductionFlag = cli.BoolFlag{
	Name:        "production",
	Usage:       "enables production-only behaviour such as cross-region replication",
	Value:       false,
	EnvVars:     []string{"PRODUCTION"},
	Destination: &CommonOpts.Production,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
	&RegionFlag,
	&AccountFlag,
	&ProductionFlag,
}

// EnvVar derives the environment variable name for a flag, e.g. "table-name"
// becomes "TABLE_NAME".
func EnvVar(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func StringFlag(name, usage string, destination *string, value ...string) *cli.StringFlag {
	f := &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: destination,
	}
	if len(value) > 0 {
		f.Value = value[0]
	}
	return f
}

func BoolFlag(name, usage string, destination *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: destination,
	}
}

func IntFlag(name, usage string, destination *int, value int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: destination,
	}
}

func DurationFlag(name, usage string, destination *time.Duration, value time.Duration) *cli.DurationFlag {
	return &cli.DurationFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: destination,
	}
}

// StringSliceFlag reads a comma separated list, from either repeated flags or
// the environment.
func StringSliceFlag(name, usage string, destination *cli.StringSlice) *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: destination,
	}
}
