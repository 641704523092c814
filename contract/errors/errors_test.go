package errors_test

import (
	"errors"
	"fmt"
	"testing"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := serr.Code(serr.ErrCodePublishFailed)
	if e.Error() != serr.ErrCodePublishFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{serr.ErrUnknownSignal, serr.ErrCodeUnknownSignal},
		{serr.ErrHandlerNotFound, serr.ErrCodeHandlerNotFound},
		{serr.ErrInvalidBinding, serr.ErrCodeInvalidBinding},
		{serr.ErrPoolClosed, serr.ErrCodePoolClosed},
		{serr.ErrQueueFull, serr.ErrCodeQueueFull},
		{serr.ErrHandlerFailed, serr.ErrCodeHandlerFailed},
		{serr.ErrHandlerPanic, serr.ErrCodeHandlerPanic},
		{serr.ErrPublishFailed, serr.ErrCodePublishFailed},
		{serr.ErrSerializationFailed, serr.ErrCodeSerializationFailed},
		{serr.ErrNotFound, serr.ErrCodeNotFound},
		{serr.ErrStoreFailed, serr.ErrCodeStoreFailed},
		{serr.ErrConfigInvalid, serr.ErrCodeConfigInvalid},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, serr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestWrappedCodesMatch(t *testing.T) {
	err := fmt.Errorf("dispatch TestPlan: %w", serr.ErrUnknownSignal)
	if !errors.Is(err, serr.ErrUnknownSignal) {
		t.Fatalf("wrapped error lost its code: %v", err)
	}
}
