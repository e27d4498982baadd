package connectiondao

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Error is returned by every registry operation that reached DynamoDB and
// failed.
type Error struct {
	Op           string
	UserID       string
	ConnectionID string
	Err          error
}

func wrap(op, userID, connectionID string, err error) error {
	return &Error{Op: op, UserID: userID, ConnectionID: connectionID, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.UserID != "" && e.ConnectionID != "":
		return fmt.Sprintf("registry %v failed for user %v, connection %v: %v", e.Op, e.UserID, e.ConnectionID, e.Err)
	case e.UserID != "":
		return fmt.Sprintf("registry %v failed for user %v: %v", e.Op, e.UserID, e.Err)
	case e.ConnectionID != "":
		return fmt.Sprintf("registry %v failed for connection %v: %v", e.Op, e.ConnectionID, e.Err)
	default:
		return fmt.Sprintf("registry %v failed: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the registry was unavailable rather than the
// request being wrong: throttling, server errors, timeouts and network errors.
func (e *Error) Retryable() bool {
	return isRetryable(e.Err)
}

// IsRetryable reports whether err is a registry error worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case request.CanceledErrorCode:
		return errors.Is(aerr.OrigErr(), context.DeadlineExceeded)
	case dynamodb.ErrCodeProvisionedThroughputExceededException,
		dynamodb.ErrCodeRequestLimitExceeded,
		dynamodb.ErrCodeInternalServerError,
		dynamodb.ErrCodeTransactionConflictException,
		"ThrottlingException",
		"ServiceUnavailable":
		return true
	}
	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) && rerr.StatusCode() >= 500 {
		return true
	}
	return request.IsErrorRetryable(aerr) || request.IsErrorThrottle(aerr)
}
