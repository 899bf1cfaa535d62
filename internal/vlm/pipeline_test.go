package vlm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"docprovrag/internal/worker"
)

func TestRetryable_TimeoutAndFailedAreRetryable(t *testing.T) {
	assert.True(t, retryable(&worker.CallError{Kind: worker.ErrWorkerTimeout}))
	assert.True(t, retryable(&worker.CallError{Kind: worker.ErrWorkerFailed}))
}

func TestRetryable_UnavailableAndParseErrorAreNotRetryable(t *testing.T) {
	assert.False(t, retryable(&worker.CallError{Kind: worker.ErrWorkerUnavailable}))
	assert.False(t, retryable(&worker.CallError{Kind: worker.ErrWorkerParseError}))
}

func TestRetryable_WrappedErrorStillClassifies(t *testing.T) {
	wrapped := fmt.Errorf("describe: %w", &worker.CallError{Kind: worker.ErrWorkerTimeout})
	assert.True(t, retryable(wrapped))
	assert.True(t, errors.Is(wrapped, worker.ErrWorkerTimeout))
}
