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

// promiseState is the single-assignment state of a Promise.
type promiseState uint8

const (
	statePending promiseState = iota
	stateFulfilled
	stateFailed
)

// Promise is a single-assignment eventual value with ordered continuation
// dispatch. It offers exactly one operation, When; there are no chaining
// combinators.
//
// Continuations never run synchronously: whether the promise is pending or
// already settled at registration, the handler is queued through the
// process-wide driver's Defer and runs no earlier than the next tick. This
// uniformity means callers never need to special-case fast-path settlement.
//
// Like the loop itself, a Promise is confined to the loop goroutine.
type Promise[T any] struct {
	state    promiseState
	value    T
	err      error
	handlers []func(err error, value T)
}

// promiseMarker lets non-generic code recognize a native promise of any
// element type.
type promiseMarker interface {
	promiseMarker()
}

var _ promiseMarker = (*Promise[int])(nil)

func (*Promise[T]) promiseMarker() {}

// When registers a continuation. handler receives the failure or the value;
// exactly one of the two is meaningful, discriminated by err != nil
// (fulfilment with a zero value is legal). Handlers fire in registration
// order, each in a tick strictly later than its registration.
//
// A panic inside handler is rethrown into the loop, where it reaches the
// error funnel without disturbing sibling handlers.
func (p *Promise[T]) When(handler func(err error, value T)) {
	if handler == nil {
		panic(ErrInvalidArgument)
	}

	if p.state == statePending {
		p.handlers = append(p.handlers, handler)
		return
	}
	p.schedule(handler)
}

// settle assigns the terminal state and queues the registered handlers, in
// order. Settling twice is a silent no-op at this level; callers that must
// reject double settlement (Deferred, the emitter) enforce it themselves.
func (p *Promise[T]) settle(err error, value T) {
	if p.state != statePending {
		return
	}

	if err != nil {
		p.state = stateFailed
		p.err = err
	} else {
		p.state = stateFulfilled
		p.value = value
	}

	handlers := p.handlers
	p.handlers = nil
	for _, handler := range handlers {
		p.schedule(handler)
	}
}

// schedule defers one handler invocation into the loop.
func (p *Promise[T]) schedule(handler func(err error, value T)) {
	driver := mustDriver()
	driver.Defer(func(_ WatcherID, _ any) error {
		defer func() {
			if r := recover(); r != nil {
				rethrow(panicError(r))
			}
		}()
		handler(p.err, p.value)
		return nil
	}, nil)
}

// rethrow routes a continuation failure into the loop's error funnel via a
// dedicated defer watcher, so sibling continuations are unaffected.
func rethrow(err error) {
	mustDriver().Defer(func(_ WatcherID, _ any) error {
		return err
	}, nil)
}

// Success returns an immediately fulfilled promise. The value must not be a
// promise or promise-like itself; eventual values are flattened through
// Deferred adoption, never nested.
func Success[T any](value T) *Promise[T] {
	if isEventual[T](value) {
		panic(ErrInvalidArgument)
	}
	return &Promise[T]{state: stateFulfilled, value: value}
}

// Failure returns an immediately failed promise carrying err.
func Failure[T any](err error) *Promise[T] {
	if err == nil {
		panic(ErrInvalidArgument)
	}
	return &Promise[T]{state: stateFailed, err: err}
}

// isEventual reports whether value is a native promise or a foreign
// promise-like of the same element type.
func isEventual[T any](value T) bool {
	switch any(value).(type) {
	case promiseMarker:
		return true
	case PromiseLike[T]:
		return true
	}
	return false
}

// PromiseLike is the adaptation point for foreign promise abstractions: any
// value offering a two-callback registration can be adopted by a Deferred or
// emitted into an iterator.
type PromiseLike[T any] interface {
	Then(onFulfilled func(value T), onRejected func(err error))
}

// Adapt wraps a foreign promise-like value as a native Promise. The foreign
// registration decides when the callbacks run; the native promise then
// applies the usual next-tick continuation dispatch on top. Only the first
// callback invocation wins, should the foreign implementation misbehave.
func Adapt[T any](pl PromiseLike[T]) *Promise[T] {
	if pl == nil {
		panic(ErrInvalidArgument)
	}

	p := &Promise[T]{}
	pl.Then(
		func(value T) { p.settle(nil, value) },
		func(err error) {
			if err == nil {
				err = ErrInvalidArgument
			}
			p.settle(err, p.value)
		},
	)
	return p
}
