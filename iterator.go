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

// Iterator is the single consumer handle of a stream. It owns the position
// cursor exclusively; everything else lives in the state shared with the
// producer.
//
// A consumer that stops iterating must call Dispose, the Go mapping of
// dropping the handle: outstanding backpressure is released so a suspended
// producer resumes, and its next emit observes the disposed failure.
type Iterator[T any] struct {
	s        *iteratorState[T]
	position int
}

// Advance moves the cursor past the current value and resolves when the
// stream has a verdict for the next position: true when a value is ready for
// Current, false when the stream completed, or the stream's terminal error.
//
// Advancing releases the backpressure promise of the value being left
// behind; that is the only thing that lets a backpressure-respecting
// producer emit further values.
//
// Calling Advance again while a prior Advance promise is still pending is a
// programming error and panics with ErrOverlappedAdvance.
func (it *Iterator[T]) Advance() *Promise[bool] {
	s := it.s

	if s.waiting != nil {
		panic(ErrOverlappedAdvance)
	}

	if pressure, ok := s.backpressure[it.position]; ok {
		delete(s.backpressure, it.position)
		pressure.Resolve(struct{}{})
	}
	delete(s.values, it.position)
	it.position++

	if _, ok := s.values[it.position]; ok {
		return Success(true)
	}
	if s.complete != nil {
		return s.complete
	}

	s.waiting = NewDeferred[bool]()
	return s.waiting.Promise()
}

// Current returns the value at the cursor. It fails with ErrCompleted when
// the buffer is drained and the stream terminated, and with ErrNotReady when
// no Advance has settled for this position yet.
func (it *Iterator[T]) Current() (T, error) {
	s := it.s

	if value, ok := s.values[it.position]; ok {
		return value, nil
	}

	var zero T
	if s.complete != nil && len(s.values) == 0 {
		return zero, ErrCompleted
	}
	return zero, ErrNotReady
}

// Dispose drops the consumer side of the stream. Every buffered value is
// discarded and its backpressure promise resolved, so a producer suspended
// on an emit resumes; the producer's next emit then fails with the disposed
// error and winds the coroutine down. Dispose is idempotent.
func (it *Iterator[T]) Dispose() {
	s := it.s

	if s.disposed {
		return
	}
	s.disposed = true

	for position, pressure := range s.backpressure {
		delete(s.backpressure, position)
		delete(s.values, position)
		pressure.Resolve(struct{}{})
	}
}
