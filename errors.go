// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/aio/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aio

import (
	"errors"
	"fmt"
)

const Namespace = "aio"

var (
	// ErrInvalidArgument reports a malformed argument, such as constructing
	// a Success with a promise as its value, or a negative timer interval.
	ErrInvalidArgument = errors.New(Namespace + ": invalid argument")

	// ErrInvalidWatcher reports an Enable, Reference, or Unreference call on
	// an identifier that is unknown or was cancelled.
	ErrInvalidWatcher = errors.New(Namespace + ": unknown or cancelled watcher identifier")

	// ErrUnsupportedFeature reports a watcher kind the current platform
	// cannot provide, such as signal watchers without POSIX signals.
	ErrUnsupportedFeature = errors.New(Namespace + ": feature is not supported on this platform")

	// ErrAlreadyRunning is returned by Run on a driver that is running.
	ErrAlreadyRunning = errors.New(Namespace + ": driver is already running")

	// ErrAlreadySettled reports a second Resolve or Fail on a Deferred.
	ErrAlreadySettled = errors.New(Namespace + ": deferred has already been settled")

	// ErrAlreadyComplete reports a second Complete or Fail on an emitter, or
	// an Emit after the stream terminated.
	ErrAlreadyComplete = errors.New(Namespace + ": iterator has already been completed")

	// ErrCompletedBeforeEmit reports that a promise passed to Emit settled
	// only after the iterator had already terminated, so its result could
	// not be emitted. Kept distinct from ErrAlreadyComplete: this one
	// surfaces asynchronously through the emit promise.
	ErrCompletedBeforeEmit = errors.New(Namespace + ": iterator was completed before the promise result could be emitted")

	// ErrOverlappedAdvance reports an Advance call while the promise of a
	// prior Advance is still pending.
	ErrOverlappedAdvance = errors.New(Namespace + ": prior advance has not settled")

	// ErrCompleted reports a Current call on an exhausted iterator.
	ErrCompleted = errors.New(Namespace + ": iterator has completed")

	// ErrNotReady reports a Current call before an Advance has settled.
	ErrNotReady = errors.New(Namespace + ": no value is available at the current position")

	// ErrSingleConsumer reports a second Iterate call on an emitter.
	ErrSingleConsumer = errors.New(Namespace + ": iterator has already been acquired")

	// ErrNoDriver reports a package-level passthrough invoked after the
	// process-wide driver was cleared with SetDriver(nil).
	ErrNoDriver = errors.New(Namespace + ": no event loop driver is installed")
)

// ErrDisposed is the terminal failure a producer observes once its consumer
// handle has been disposed. It is a *DisposedError.
var ErrDisposed = &DisposedError{}

// DisposedError is the failure injected into a producing coroutine when the
// consumer handle of its iterator is dropped: the next Emit fails with it,
// and the coroutine is expected to let it propagate so the iteration ends.
type DisposedError struct{}

// Error implements the error interface.
func (*DisposedError) Error() string {
	return Namespace + ": the iterator has been disposed"
}

// Is matches any *DisposedError, so errors.Is(err, ErrDisposed) works for
// wrapped and re-created instances alike.
func (*DisposedError) Is(target error) bool {
	_, ok := target.(*DisposedError)
	return ok
}

// AlreadyCompleteError is the panic value of a double completion. When stack
// capture is enabled (see the AMP_DEBUG environment variable), it carries the
// stack of the first completion to point at the competing call site.
type AlreadyCompleteError struct {
	// FirstCompletion is the stack captured at the first Complete or Fail,
	// empty when capture is disabled.
	FirstCompletion []byte
}

// Error implements the error interface.
func (e *AlreadyCompleteError) Error() string {
	if len(e.FirstCompletion) == 0 {
		return ErrAlreadyComplete.Error()
	}
	return fmt.Sprintf("%s; first completed at:\n%s", ErrAlreadyComplete.Error(), e.FirstCompletion)
}

// Unwrap makes errors.Is(err, ErrAlreadyComplete) match.
func (e *AlreadyCompleteError) Unwrap() error {
	return ErrAlreadyComplete
}

// PanicError wraps a value recovered from a panicking watcher callback or
// promise continuation before it is handed to the error handler.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: callback panicked: %v", Namespace, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling errors.Is and errors.As through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// panicError normalizes a recovered value into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return &PanicError{Value: err}
	}
	return &PanicError{Value: v}
}
