package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/wolfeidau/deskbook/internal/store"
)

// cancellation reason codes reported by TransactWriteItems
const (
	reasonConditionalCheck    = "ConditionalCheckFailed"
	reasonTransactionConflict = "TransactionConflict"
	reasonThrottling          = "ThrottlingError"
	reasonProvisioned         = "ProvisionedThroughputExceeded"
	reasonValidation          = "ValidationError"
)

var throttlingCodes = map[string]bool{
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
}

// wrapAWSError maps DynamoDB failures onto the store sentinels: failed
// preconditions and transaction conflicts become store.ErrConflict,
// throttling and transport failures become store.ErrUnavailable.
func wrapAWSError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return fmt.Errorf("%s: %w: %s", msg, cancellationError(canceled.CancellationReasons), aws.ToString(canceled.Message))
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%s: %w", msg, store.ErrConflict)
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return fmt.Errorf("%s: %w", msg, store.ErrConflict)
	}

	var provisionedErr *types.ProvisionedThroughputExceededException
	if errors.As(err, &provisionedErr) {
		return fmt.Errorf("%s: %w: %v", msg, store.ErrUnavailable, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if throttlingCodes[apiErr.ErrorCode()] {
			return fmt.Errorf("%s: %w: %v", msg, store.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	// no API response at all: the endpoint could not be reached
	return fmt.Errorf("%s: %w: %v", msg, store.ErrUnavailable, err)
}

// cancellationError picks the sentinel for a cancelled transaction from the
// per-item reasons.
func cancellationError(reasons []types.CancellationReason) error {
	for _, r := range reasons {
		switch aws.ToString(r.Code) {
		case reasonConditionalCheck, reasonTransactionConflict:
			return store.ErrConflict
		}
	}
	for _, r := range reasons {
		switch aws.ToString(r.Code) {
		case reasonThrottling, reasonProvisioned:
			return store.ErrUnavailable
		case reasonValidation:
			return store.ErrInvalidBatch
		}
	}
	return store.ErrConflict
}
