package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is one attempt of a retried unit of work.
type Operation func() error

// IsRetryable decides whether a failed attempt should be repeated.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 5

// WithRetries runs op once plus up to maxRetries more times while isRetryable
// accepts the error. Non-retryable errors return immediately. A short
// incremental backoff separates attempts and stops early when ctx is done.
func WithRetries(ctx context.Context, op Operation, maxRetries int, isRetryable IsRetryable) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isRetryable(err) {
			break
		}

		timer := time.NewTimer(time.Duration(5*(attempt+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// IsMongoDuplicateKeyError reports a duplicate key write error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}
