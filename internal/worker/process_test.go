package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse_DecodesLastJSONLineOnSuccess(t *testing.T) {
	var resp struct {
		Success bool  `json:"success"`
		Vector  []int `json:"vector"`
	}
	stdout := []byte("warming up...\nloading model\n{\"success\":true,\"vector\":[1,2,3]}\n")
	err := decodeResponse(stdout, &resp, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []int{1, 2, 3}, resp.Vector)
}

func TestDecodeResponse_SkipsNonJSONNoiseLines(t *testing.T) {
	var resp struct {
		Success bool `json:"success"`
	}
	stdout := []byte("not json at all\n{not json either\n{\"success\":true}")
	err := decodeResponse(stdout, &resp, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestDecodeResponse_FailureReportsWorkerMessage(t *testing.T) {
	var resp struct {
		Success bool `json:"success"`
	}
	stdout := []byte(`{"success":false,"error":"model not found"}`)
	err := decodeResponse(stdout, &resp, "stderr tail")
	require.Error(t, err)
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(ce, ErrWorkerFailed))
	assert.Equal(t, "model not found", ce.Message)
	assert.Equal(t, "stderr tail", ce.StderrTail)
}

func TestDecodeResponse_MissingSuccessFieldIsParseError(t *testing.T) {
	var resp struct {
		Success bool `json:"success"`
	}
	stdout := []byte(`{"vector":[1,2,3]}`)
	err := decodeResponse(stdout, &resp, "")
	require.Error(t, err)
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(ce, ErrWorkerParseError))
}

func TestDecodeResponse_NoJSONLineIsParseError(t *testing.T) {
	var resp struct{}
	err := decodeResponse([]byte("garbage\nmore garbage"), &resp, "")
	require.Error(t, err)
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(ce, ErrWorkerParseError))
}

func TestRingBuffer_BoundsToMostRecentBytes(t *testing.T) {
	r := newRingBuffer(4)
	r.Write([]byte("ab"))
	r.Write([]byte("cdef"))
	assert.Equal(t, "cdef", r.String())
}

func TestSettledGuard_OnlyFirstTrySettleSucceeds(t *testing.T) {
	g := &settledGuard{}
	assert.True(t, g.trySettle())
	assert.False(t, g.trySettle())
}

func TestSettledGuard_SettleThenTrySettleFails(t *testing.T) {
	g := &settledGuard{}
	g.settle()
	assert.False(t, g.trySettle())
}
