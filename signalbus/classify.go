package signalbus

import (
	"fmt"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
	"github.com/next-trace/scg-signal-bus/contract/signal"
)

// Classify derives the operation label for ev. Save conflates inserts and updates,
// so the Created flag decides; deletes are always "delete" and bulk updates always "update".
func Classify(ev signal.Event) (signal.Operation, error) {
	switch ev.Kind {
	case signal.KindSave:
		if ev.Created {
			return signal.OperationCreate, nil
		}

		return signal.OperationUpdate, nil
	case signal.KindDelete:
		return signal.OperationDelete, nil
	case signal.KindBulkUpdate:
		return signal.OperationUpdate, nil
	default:
		return "", fmt.Errorf("classify %q: %w", ev.Kind, serr.ErrUnknownSignal)
	}
}
