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

// Deferred is the write capability over exactly one promise. Create one,
// hand out its Promise, and settle it exactly once with Resolve or Fail.
//
// Dropping a deferred without settling leaves its promise pending forever.
// That is legal, but every continuation registered on the promise is leaked
// with it; the iterator relies on this property during disposal and settles
// its own deferreds deliberately.
type Deferred[T any] struct {
	p       *Promise[T]
	settled bool
}

// NewDeferred creates a deferred paired with a fresh pending promise.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{p: &Promise[T]{}}
}

// Promise returns the promise this deferred settles.
func (d *Deferred[T]) Promise() *Promise[T] {
	return d.p
}

// Resolve fulfils the promise with value. When value is itself a native
// promise or a PromiseLike, the deferred adopts it instead: its promise
// settles with the same state as value, at the time value settles. Adoption
// is flat; adopting a promise that itself adopts adds no wake-ups beyond the
// ones the inputs already perform.
//
// A second settlement attempt panics with ErrAlreadySettled: double
// settlement is a programming error, reported to the caller and never routed
// through the loop's error funnel.
func (d *Deferred[T]) Resolve(value T) {
	if d.settled {
		panic(ErrAlreadySettled)
	}
	d.settled = true

	if inner, ok := any(value).(*Promise[T]); ok {
		d.adopt(inner)
		return
	}
	if foreign, ok := any(value).(PromiseLike[T]); ok {
		d.adopt(Adapt(foreign))
		return
	}

	d.p.settle(nil, value)
}

// Fail settles the promise as failed. err must be non-nil; continuations
// discriminate failure from fulfilment by it. A second settlement attempt
// panics with ErrAlreadySettled.
func (d *Deferred[T]) Fail(err error) {
	if d.settled {
		panic(ErrAlreadySettled)
	}
	if err == nil {
		panic(ErrInvalidArgument)
	}
	d.settled = true

	d.p.settle(err, d.p.value)
}

func (d *Deferred[T]) adopt(inner *Promise[T]) {
	inner.When(func(err error, value T) {
		d.p.settle(err, value)
	})
}
