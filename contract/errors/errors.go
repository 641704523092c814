package errors

// Error codes for the signal contracts. Keep stable; used across adapters, bus and store.
const (
	ErrCodeUnknownSignal       = "signalbus.unknown_signal"
	ErrCodeHandlerNotFound     = "signalbus.handler_not_found"
	ErrCodeInvalidBinding      = "signalbus.invalid_binding"
	ErrCodePoolClosed          = "signalbus.pool_closed"
	ErrCodeQueueFull           = "signalbus.queue_full"
	ErrCodeHandlerFailed       = "signalbus.handler_failed"
	ErrCodeHandlerPanic        = "signalbus.handler_panic"
	ErrCodePublishFailed       = "signalbus.publish_failed"
	ErrCodeSerializationFailed = "signalbus.serialization_failed"
	ErrCodeNotFound            = "signalbus.not_found"
	ErrCodeStoreFailed         = "signalbus.store_failed"
	ErrCodeConfigInvalid       = "signalbus.config_invalid"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrUnknownSignal       = Code(ErrCodeUnknownSignal)
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrInvalidBinding      = Code(ErrCodeInvalidBinding)
	ErrPoolClosed          = Code(ErrCodePoolClosed)
	ErrQueueFull           = Code(ErrCodeQueueFull)
	ErrHandlerFailed       = Code(ErrCodeHandlerFailed)
	ErrHandlerPanic        = Code(ErrCodeHandlerPanic)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrNotFound            = Code(ErrCodeNotFound)
	ErrStoreFailed         = Code(ErrCodeStoreFailed)
	ErrConfigInvalid       = Code(ErrCodeConfigInvalid)
)
