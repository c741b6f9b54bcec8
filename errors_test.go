package shortbus

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypesImplementShortbusError(t *testing.T) {
	errs := []ShortbusError{
		&BrokerNotFoundError{SearchedPaths: []string{"/usr/bin/shortbus"}},
		&ConnectionError{Err: stderrors.New("refused")},
		&ProcessError{ExitCode: 1, Stderr: "boom"},
		&DecodeError{RawData: "{not json"},
		&OperationError{Op: "publish", Message: "no such topic"},
		&SchemaError{Topic: "metrics", Err: stderrors.New("missing field")},
	}

	for _, err := range errs {
		assert.True(t, err.IsShortbusError())
		assert.NotEmpty(t, err.Error())
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := stderrors.New("pipe closed")

	wrapped := fmt.Errorf("start transport: %w", &ConnectionError{Err: cause})

	var connErr *ConnectionError

	require.True(t, stderrors.As(wrapped, &connErr))
	assert.ErrorIs(t, wrapped, cause)
}

func TestOperationErrorMessage(t *testing.T) {
	err := &OperationError{Op: "publish", Message: "no such topic"}
	assert.Equal(t, "publish failed: no such topic", err.Error())

	bare := &OperationError{Op: "ping"}
	assert.Equal(t, "ping failed", bare.Error())
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrClientNotConnected,
		ErrClientAlreadyConnected,
		ErrClientClosed,
		ErrTransportNotConnected,
		ErrRequestTimeout,
		ErrConnectionLost,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}

			assert.NotErrorIs(t, a, b)
		}
	}
}
