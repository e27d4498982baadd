// Package notifyreport takes periodic JSON snapshots and archives them in S3,
// keyed by service, report name and time.
package notifyreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	notifycli "github.com/pubsub-social/notify-go/notify-cli"
	"github.com/rs/zerolog"
)

// lookbackDays bounds how far Latest searches for a snapshot.
const lookbackDays = 5

var ErrNoSnapshot = errors.New("no snapshot found")

type SnapshotFunc func(ctx context.Context) (interface{}, error)

type Handler struct {
	service notifycli.Service
	logger  zerolog.Logger
	s3      s3iface.S3API
	stdout  io.Writer
	now     func() time.Time

	name     string
	snapshot SnapshotFunc
}

// Key is the object key for a snapshot taken at t.
func Key(serviceName, name string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%v/%v/%v/%v/%v", serviceName, name, t.Format("2006-01-02"), t.Format("15"), t.Format("2006-01-02-15:04:05.json"))
}

func NewHandler(service notifycli.Service, name string, snapshot SnapshotFunc) *Handler {
	config := aws.NewConfig()
	if notifycli.CommonOpts.Region != "" {
		config = config.WithRegion(notifycli.CommonOpts.Region)
	}
	return newHandler(service, s3.New(session.Must(session.NewSession(config))), name, snapshot)
}

func newHandler(service notifycli.Service, api s3iface.S3API, name string, snapshot SnapshotFunc) *Handler {
	return &Handler{
		service:  service,
		logger:   notifycli.Logger(service),
		s3:       api,
		stdout:   os.Stdout,
		now:      time.Now,
		name:     name,
		snapshot: snapshot,
	}
}

// Take builds a snapshot and archives it. With --dry it is written to
// --out-file, or stdout when no file is given.
func (h *Handler) Take(ctx context.Context, _ json.RawMessage) error {
	ctx = h.logger.WithContext(ctx)
	v, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Str("report", h.name).Msg("failed to take snapshot")
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal %v snapshot: %w", h.name, err)
	}

	if notifycli.CommonOpts.Dry {
		if ReportOpts.OutFile == "" {
			_, err := h.stdout.Write(append(data, '\n'))
			return err
		}
		h.logger.Info().Str("file", ReportOpts.OutFile).Int("size", len(data)).Msg("dry run, saving snapshot locally")
		return os.WriteFile(ReportOpts.OutFile, data, 0644)
	}

	if ReportOpts.Bucket == "" {
		return notifycli.MissingOption("bucket")
	}
	key := Key(h.service.Name, h.name, h.now())
	h.logger.Info().Str("bucket", ReportOpts.Bucket).Str("key", key).Int("size", len(data)).Msg("saving snapshot to s3")
	_, err = h.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ReportOpts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("unable to save snapshot %v: %w", key, err)
	}
	return nil
}

// Latest returns the most recent snapshot at or before asOf, looking back a
// few days at most.
func Latest(ctx context.Context, api s3iface.S3API, bucket, serviceName, name string, asOf time.Time) ([]byte, string, error) {
	day := asOf.UTC()
	for i := 0; i <= lookbackDays; i++ {
		prefix := fmt.Sprintf("%v/%v/%v", serviceName, name, day.Format("2006-01-02"))
		out, err := api.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			MaxKeys: aws.Int64(1000),
			Prefix:  aws.String(prefix),
		})
		if err != nil {
			return nil, "", fmt.Errorf("unable to list snapshots under %v: %w", prefix, err)
		}
		if len(out.Contents) == 0 {
			day = day.AddDate(0, 0, -1)
			continue
		}

		sort.Slice(out.Contents, func(i, j int) bool {
			return aws.StringValue(out.Contents[i].Key) > aws.StringValue(out.Contents[j].Key)
		})
		key := aws.StringValue(out.Contents[0].Key)
		obj, err := api.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, "", fmt.Errorf("unable to get snapshot %v: %w", key, err)
		}
		defer obj.Body.Close()
		data, err := io.ReadAll(obj.Body)
		if err != nil {
			return nil, "", fmt.Errorf("unable to read snapshot %v: %w", key, err)
		}
		return data, key, nil
	}
	return nil, "", fmt.Errorf("%w for %v/%v in the last %v days", ErrNoSnapshot, serviceName, name, lookbackDays)
}

func (h *Handler) Start() error {
	if ReportOpts.Latest {
		data, key, err := Latest(context.Background(), h.s3, ReportOpts.Bucket, h.service.Name, h.name, h.now())
		if err != nil {
			return err
		}
		h.logger.Info().Str("key", key).Msg("latest snapshot")
		_, err = h.stdout.Write(append(data, '\n'))
		return err
	}

	switch {
	case notifycli.CommonOpts.Console:
		return h.Take(context.Background(), nil)

	default:
		lambda.Start(h.Take)
	}
	return nil
}
