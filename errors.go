package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPopulation is returned by NewDevice for a negative worker count.
	ErrInvalidPopulation = errors.New("compute: invalid population")

	// ErrNilFactory is returned when Dispatch or Enqueue get a nil factory.
	ErrNilFactory = errors.New("compute: operation factory is nil")

	// ErrNilOperation is returned when a factory builds no operation.
	ErrNilOperation = errors.New("compute: factory returned nil operation")

	// ErrNilSource is returned by Validate of a payload operation without a source.
	ErrNilSource = errors.New("compute: payload source is nil")

	// ErrNilFunc is returned by Validate of an AsyncFunc that is nil.
	ErrNilFunc = errors.New("compute: async func is nil")

	// ErrUnknownOperation is returned for operations that are neither
	// parallel nor async.
	ErrUnknownOperation = errors.New("compute: operation has no execution shape")

	// ErrDeviceBusy is returned by Dispatch while another operation is current.
	ErrDeviceBusy = errors.New("compute: device is busy")

	// ErrDeviceClosed is returned after Close.
	ErrDeviceClosed = errors.New("compute: device closed")

	// ErrNoWorkers is returned when every worker is aborted.
	ErrNoWorkers = errors.New("compute: no usable workers")

	// ErrAborted is the error recorded for workers stopped by Abort.
	ErrAborted = errors.New("compute: operation aborted")

	// ErrPinUnsupported is returned by PinToCPU on platforms without affinity.
	ErrPinUnsupported = errors.New("compute: cpu pinning not supported")

	// ErrTooManyLabels is returned by NewLabelSet above MaxLabels names.
	ErrTooManyLabels = errors.New("compute: too many labels")

	// ErrDuplicateLabel is returned by NewLabelSet for repeated names.
	ErrDuplicateLabel = errors.New("compute: duplicate label")
)

// PanicError wraps a value recovered from a panicking operation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("compute: operation panicked: %v", e.Value)
}

// WorkerError reports the failure of one worker.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("compute: worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
