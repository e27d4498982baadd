package notifyproducer

import (
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	notifysecret "github.com/pubsub-social/notify-go/notify-secret"
	"github.com/urfave/cli/v2"
)

var DBOpts struct {
	Address string
	Secret  string
}

var DBAddressFlag = notifycli.StringFlag("db-address", "Postgres connection string for the social database", &DBOpts.Address)
var DBSecretFlag = notifycli.StringFlag("db-secret", "Secrets Manager secret holding the social database credentials", &DBOpts.Secret)

var DBFlags = []cli.Flag{
	DBAddressFlag,
	DBSecretFlag,
}

// DBSecret is the shape of the database credentials secret.
type DBSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
}

func (s DBSecret) DSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   fmt.Sprintf("%v:%v", s.Host, port),
		Path:   "/" + s.DBName,
	}
	return u.String()
}

// DSN resolves the social database address, from --db-address or else from
// the --db-secret secret. Having neither is a configuration error.
func DSN() (string, error) {
	if DBOpts.Address != "" {
		return DBOpts.Address, nil
	}
	if DBOpts.Secret == "" {
		return "", notifycli.MissingOption("db-address")
	}

	s := session.Must(session.NewSession(aws.NewConfig().WithRegion(notifycli.CommonOpts.Region)))
	var secret DBSecret
	if err := notifysecret.LoadSecret(s, DBOpts.Secret, &secret); err != nil {
		return "", err
	}
	return secret.DSN(), nil
}
