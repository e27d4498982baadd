package notifycli

import (
	"os"

	"github.com/rs/zerolog"
)

func Logger(service Service) zerolog.Logger {
	level := zerolog.InfoLevel
	if CommonOpts.Console {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", service.Name).
		Str("version", service.Version).
		Str("region", CommonOpts.Region).
		Logger()
}
