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
	"os"
	"runtime/debug"
)

// captureCompletionStack is decided once from AMP_DEBUG: truthy enables
// recording the stack of an iterator's first completion so a later double
// completion can name the competing call site. Off by default, zero
// overhead.
var captureCompletionStack = func() bool {
	v := os.Getenv("AMP_DEBUG")
	return v != "" && v != "0" && v != "false"
}()

// EmitFunc is the capability handed to a producer: appending one value to
// the stream and receiving the backpressure promise for it. The promise
// settles when the consumer has advanced past that specific value, which is
// what enforces one-by-one backpressure on producers that await it.
type EmitFunc[T any] func(value T) *Promise[struct{}]

// iteratorState is the single state record shared by the producing and the
// consuming side of a stream. Values and backpressure deferreds are buffered
// under the emit position they were produced at; positions are stable
// logical indices and keys free up sparsely as the consumer advances.
type iteratorState[T any] struct {
	values       map[int]T
	backpressure map[int]*Deferred[struct{}]
	emitPos      int

	// waiting exists only while the consumer blocks on an empty buffer of a
	// live stream; at most one at a time.
	waiting *Deferred[bool]

	// complete is nil while the stream is live, then a promise fulfilled
	// with false (normal end) or failed with the terminal error.
	complete *Promise[bool]

	disposed bool

	completionStack []byte
}

// Emitter is the producer side of a backpressured, single-consumer async
// stream. Emit appends values, Complete and Fail terminate the stream, and
// Iterate hands out the one consumer handle.
type Emitter[T any] struct {
	s        *iteratorState[T]
	iterated bool
}

// NewEmitter creates a live, empty stream.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{
		s: &iteratorState[T]{
			values:       map[int]T{},
			backpressure: map[int]*Deferred[struct{}]{},
		},
	}
}

// Iterate returns the consumer handle. A stream has exactly one consumer;
// further calls fail with ErrSingleConsumer.
func (e *Emitter[T]) Iterate() (*Iterator[T], error) {
	if e.iterated {
		return nil, ErrSingleConsumer
	}
	e.iterated = true

	return &Iterator[T]{s: e.s, position: -1}, nil
}

// Emit appends value to the stream and returns its backpressure promise.
//
// When the consumer handle was already disposed, Emit installs the terminal
// disposed failure and returns a promise in that failed state — this is how
// consumer drop propagates into a producing coroutine that awaits its emits.
// Emitting after Complete or Fail is a programming error and panics with an
// AlreadyCompleteError.
//
// When value is itself a promise or promise-like, Emit adopts it: the value
// is awaited and its result re-emitted transparently. A failure of the
// awaited value fails the whole iterator; completion or failure of the
// iterator while the value is still pending fails the returned promise with
// ErrCompletedBeforeEmit, and disposal in that window fails it with the
// disposed error.
func (e *Emitter[T]) Emit(value T) *Promise[struct{}] {
	s := e.s

	if s.complete != nil {
		if s.disposed {
			return Failure[struct{}](ErrDisposed)
		}
		panic(e.alreadyComplete())
	}

	if s.disposed {
		e.finalize(Failure[bool](ErrDisposed))
		return Failure[struct{}](ErrDisposed)
	}

	if inner, ok := any(value).(*Promise[T]); ok {
		return e.emitAdopted(inner)
	}
	if foreign, ok := any(value).(PromiseLike[T]); ok {
		return e.emitAdopted(Adapt(foreign))
	}

	position := s.emitPos
	s.emitPos++

	s.values[position] = value
	pressure := NewDeferred[struct{}]()
	s.backpressure[position] = pressure

	if s.waiting != nil {
		waiting := s.waiting
		s.waiting = nil
		waiting.Resolve(true)
	}

	return pressure.Promise()
}

// emitAdopted awaits an emitted promise and re-emits its resolved value.
func (e *Emitter[T]) emitAdopted(inner *Promise[T]) *Promise[struct{}] {
	s := e.s
	emitted := NewDeferred[struct{}]()

	inner.When(func(err error, value T) {
		if s.complete != nil {
			if s.disposed {
				emitted.Fail(ErrDisposed)
			} else {
				emitted.Fail(ErrCompletedBeforeEmit)
			}
			return
		}
		if err != nil {
			e.finalize(Failure[bool](err))
			emitted.Fail(err)
			return
		}

		reemitted := e.Emit(value)
		reemitted.When(func(err error, _ struct{}) {
			if err != nil {
				emitted.Fail(err)
			} else {
				emitted.Resolve(struct{}{})
			}
		})
	})

	return emitted.Promise()
}

// Complete terminates the stream normally: the consumer's pending or next
// Advance resolves to false. Completing twice panics.
func (e *Emitter[T]) Complete() {
	if e.s.complete != nil {
		panic(e.alreadyComplete())
	}
	e.finalize(Success(false))
}

// Fail terminates the stream with err: the consumer's pending or next
// Advance fails with it. Failing a terminated stream panics.
func (e *Emitter[T]) Fail(err error) {
	if err == nil {
		panic(ErrInvalidArgument)
	}
	if e.s.complete != nil {
		panic(e.alreadyComplete())
	}
	e.finalize(Failure[bool](err))
}

// finalize installs the terminal state and wakes a blocked consumer.
func (e *Emitter[T]) finalize(result *Promise[bool]) {
	s := e.s

	if captureCompletionStack {
		s.completionStack = debug.Stack()
	}
	s.complete = result

	if s.waiting != nil {
		waiting := s.waiting
		s.waiting = nil
		if result.state == stateFailed {
			waiting.Fail(result.err)
		} else {
			waiting.Resolve(false)
		}
	}
}

func (e *Emitter[T]) alreadyComplete() error {
	return &AlreadyCompleteError{FirstCompletion: e.s.completionStack}
}

// NewProducer runs a coroutine-shaped producer against a fresh stream and
// returns the consumer handle. fn receives the emit capability and returns
// the promise of its own completion — how that promise is produced (a
// goroutine settling a Deferred, a chain of continuations, an adapted
// foreign future) is the caller's choice; no coroutine flavour is baked in.
//
// Fulfilment of the completion promise completes the iterator; failure fails
// it. A DisposedError failure after the consumer dropped the iterator is
// swallowed: that is the expected way a producing coroutine winds down.
func NewProducer[T any](fn func(emit EmitFunc[T]) *Promise[struct{}]) *Iterator[T] {
	if fn == nil {
		panic(ErrInvalidArgument)
	}

	e := NewEmitter[T]()
	it, _ := e.Iterate()

	completion := fn(e.Emit)
	if completion == nil {
		panic(ErrInvalidArgument)
	}

	completion.When(func(err error, _ struct{}) {
		if e.s.complete != nil {
			// the stream already terminated, typically through disposal
			return
		}
		if err != nil {
			if errors.Is(err, ErrDisposed) && e.s.disposed {
				return
			}
			e.finalize(Failure[bool](err))
			return
		}
		e.finalize(Success(false))
	})

	return it
}
