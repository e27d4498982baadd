package notifyws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifyddb "github.com/pubsub-social/notify-go/notify-ddb"
	"github.com/pubsub-social/notify-go/notify-ws/connectiondao"
	"github.com/rs/zerolog"
)

// Session returns an AWS session for the configured region.
func Session() *session.Session {
	config := aws.NewConfig()
	if notifycli.CommonOpts.Region != "" {
		config = config.WithRegion(notifycli.CommonOpts.Region)
	}
	return session.Must(session.NewSession(config))
}

// RegistryTableName returns --table-name, or the environment's default table.
func RegistryTableName() string {
	if notifyddb.DDBOpts.TableName != "" {
		return notifyddb.DDBOpts.TableName
	}
	return connectiondao.TableName(notifycli.CommonOpts.Env)
}

// BuildRegistry connects to the connection registry described by the flags.
func BuildRegistry(s *session.Session) (*connectiondao.DAO, error) {
	api, err := notifyddb.DynamoDBAPI(s)
	if err != nil {
		return nil, err
	}
	return connectiondao.New(api, RegistryTableName()), nil
}

// NewDispatcher builds a dispatcher from the websocket flags.
func NewDispatcher(registry Registry, transport Transport, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Registry:    registry,
		Transport:   transport,
		Logger:      logger,
		Concurrency: WSOpts.Concurrency,
		MaxAttempts: WSOpts.PushAttempts,
		PushTimeout: WSOpts.PushTimeout,

		RegistryTimeout: WSOpts.RegistryTimeout,
	}
}

// NewHandler builds a lifecycle handler from the websocket flags.
func NewHandler(connections ConnectionStore, transport Transport, logger zerolog.Logger) *Handler {
	return &Handler{
		Connections: connections,
		Transport:   transport,
		Logger:      logger,
		ConnTTL:     WSOpts.ConnTTL,
		Endpoint:    WSOpts.GatewayEndpoint,

		RegistryTimeout: WSOpts.RegistryTimeout,
	}
}
