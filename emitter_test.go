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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_RoundTrip(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	e := NewEmitter[int]()
	it, err := e.Iterate()
	require.NoError(t, err)

	e.Emit(1)
	e.Emit(2)
	e.Emit(3)
	e.Complete()

	var values []int
	var terminal error = errors.New("never set")
	l.Defer(func(WatcherID, any) error {
		pump(t, it, &values, func(err error) { terminal = err })
		return nil
	}, nil)

	is.NoError(l.Run())
	is.Equal([]int{1, 2, 3}, values)
	is.NoError(terminal)
}

func TestEmitter_SingleConsumer(t *testing.T) {
	is := assert.New(t)

	e := NewEmitter[int]()
	_, err := e.Iterate()
	is.NoError(err)
	_, err = e.Iterate()
	is.ErrorIs(err, ErrSingleConsumer)
}

// Scenario: the backpressure promise of value k settles only when the
// consumer advances past k — after the advance call that released it, before
// that advance's own promise resolves the next value.
func TestEmitter_Backpressure(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	e := NewEmitter[int]()
	it, err := e.Iterate()
	require.NoError(t, err)

	var order []string

	l.Defer(func(WatcherID, any) error {
		e.Emit(1).When(func(err error, _ struct{}) {
			is.NoError(err)
			order = append(order, "emit1-released")
			e.Emit(2).When(func(err error, _ struct{}) {
				is.NoError(err)
				order = append(order, "emit2-released")
				e.Complete()
			})
		})
		return nil
	}, nil)

	l.Defer(func(WatcherID, any) error {
		it.Advance().When(func(err error, ok bool) {
			is.NoError(err)
			is.True(ok)
			v, cerr := it.Current()
			is.NoError(cerr)
			is.Equal(1, v)
			order = append(order, "got1")

			it.Advance().When(func(err error, ok bool) {
				is.NoError(err)
				is.True(ok)
				v, cerr := it.Current()
				is.NoError(cerr)
				is.Equal(2, v)
				order = append(order, "got2")

				it.Advance().When(func(err error, ok bool) {
					is.NoError(err)
					is.False(ok)
					order = append(order, "end")
				})
			})
		})
		return nil
	}, nil)

	is.NoError(l.Run())
	is.Equal([]string{"got1", "emit1-released", "got2", "emit2-released", "end"}, order)
}

// Scenario: dropping the consumer handle makes the producer's next emit
// install the terminal disposed failure.
func TestEmitter_ConsumerDisposalFailsProducer(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	e := NewEmitter[int]()
	it, err := e.Iterate()
	require.NoError(t, err)

	var pressure []error
	e.Emit(1).When(func(err error, _ struct{}) { pressure = append(pressure, err) })
	e.Emit(2).When(func(err error, _ struct{}) { pressure = append(pressure, err) })

	it.Dispose()

	var emitErr error
	l.Defer(func(WatcherID, any) error {
		e.Emit(3).When(func(err error, _ struct{}) { emitErr = err })
		return nil
	}, nil)

	is.NoError(l.Run())

	// outstanding backpressure was released so a suspended producer resumes
	is.Equal([]error{nil, nil}, pressure)
	// the late emit observed disposal
	is.ErrorIs(emitErr, ErrDisposed)
	// and the iterator is terminally failed
	is.NotNil(e.s.complete)
	is.Equal(stateFailed, e.s.complete.state)
	is.ErrorIs(e.s.complete.err, ErrDisposed)
}

func TestEmitter_EmitAfterCompletePanics(t *testing.T) {
	is := assert.New(t)

	e := NewEmitter[int]()
	e.Complete()

	defer func() {
		r := recover()
		is.NotNil(r)
		err, ok := r.(error)
		is.True(ok)
		is.ErrorIs(err, ErrAlreadyComplete)
	}()
	e.Emit(1)
}

func TestEmitter_DoubleCompletePanics(t *testing.T) {
	is := assert.New(t)

	e := NewEmitter[int]()
	e.Complete()
	is.Panics(func() { e.Complete() })

	e2 := NewEmitter[int]()
	e2.Fail(errors.New("boom"))
	is.Panics(func() { e2.Complete() })
}

func TestEmitter_DoubleCompleteCarriesFirstStack(t *testing.T) {
	is := assert.New(t)

	previous := captureCompletionStack
	captureCompletionStack = true
	t.Cleanup(func() { captureCompletionStack = previous })

	e := NewEmitter[int]()
	e.Complete()

	defer func() {
		r := recover()
		var ace *AlreadyCompleteError
		err, ok := r.(error)
		is.True(ok)
		is.ErrorAs(err, &ace)
		is.NotEmpty(ace.FirstCompletion)
		is.Contains(err.Error(), "first completed at")
	}()
	e.Complete()
}

func TestEmitter_FailSurfacesThroughAdvance(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	boom := errors.New("boom")
	e := NewEmitter[int]()
	it, err := e.Iterate()
	require.NoError(t, err)

	e.Fail(boom)

	var got error
	l.Defer(func(WatcherID, any) error {
		it.Advance().When(func(err error, ok bool) { got = err })
		return nil
	}, nil)

	is.NoError(l.Run())
	is.ErrorIs(got, boom)
}

// Failing wakes a consumer already blocked in Advance.
func TestEmitter_FailWakesWaitingConsumer(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	boom := errors.New("boom")
	e := NewEmitter[int]()
	it, err := e.Iterate()
	require.NoError(t, err)

	var got error
	l.Defer(func(WatcherID, any) error {
		it.Advance().When(func(err error, ok bool) { got = err })
		return nil
	}, nil)
	l.Defer(func(WatcherID, any) error {
		e.Fail(boom)
		return nil
	}, nil)

	is.NoError(l.Run())
	is.ErrorIs(got, boom)
}

// Emitting a promise adopts it: the resolved value is re-emitted
// transparently.
func TestEmitter_EmitPromiseAdopts(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	e := NewEmitter[any]()
	it, err := e.Iterate()
	require.NoError(t, err)

	inner := NewDeferred[any]()
	var released bool
	e.Emit(inner.Promise()).When(func(err error, _ struct{}) {
		is.NoError(err)
		released = true
	})

	var values []any
	var terminal error
	l.Defer(func(WatcherID, any) error {
		pump(t, it, &values, func(err error) { terminal = err })
		return nil
	}, nil)
	l.Defer(func(WatcherID, any) error {
		inner.Resolve("late")
		return nil
	}, nil)
	_, err = l.Delay(10, func(WatcherID, any) error {
		e.Complete()
		return nil
	}, nil)
	require.NoError(t, err)

	is.NoError(l.Run())
	is.Equal([]any{"late"}, values)
	is.NoError(terminal)
	is.True(released)
}

func TestEmitter_EmitPromiseFailureFailsIterator(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	boom := errors.New("boom")
	e := NewEmitter[any]()
	it, err := e.Iterate()
	require.NoError(t, err)

	var emitErr error
	e.Emit(Failure[any](boom)).When(func(err error, _ struct{}) { emitErr = err })

	var terminal error
	var values []any
	l.Defer(func(WatcherID, any) error {
		pump(t, it, &values, func(err error) { terminal = err })
		return nil
	}, nil)

	is.NoError(l.Run())
	is.ErrorIs(emitErr, boom)
	is.ErrorIs(terminal, boom)
	is.Empty(values)
}

// Completion while an emitted promise is still pending fails the emit with
// the dedicated completed-before-emit error, not plain already-complete.
func TestEmitter_CompletionBeforePendingEmitResult(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	e := NewEmitter[any]()
	_, err := e.Iterate()
	require.NoError(t, err)

	inner := NewDeferred[any]()
	var emitErr error
	e.Emit(inner.Promise()).When(func(err error, _ struct{}) { emitErr = err })

	e.Complete()

	l.Defer(func(WatcherID, any) error {
		inner.Resolve("too late")
		return nil
	}, nil)

	is.NoError(l.Run())
	is.ErrorIs(emitErr, ErrCompletedBeforeEmit)
	is.NotErrorIs(emitErr, ErrAlreadyComplete)
}

func TestNewProducer_CompletionEndsIteration(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	it := NewProducer(func(emit EmitFunc[int]) *Promise[struct{}] {
		emit(10)
		emit(20)
		return Success(struct{}{})
	})

	var values []int
	var terminal error = errors.New("never set")
	l.Defer(func(WatcherID, any) error {
		pump(t, it, &values, func(err error) { terminal = err })
		return nil
	}, nil)

	is.NoError(l.Run())
	is.Equal([]int{10, 20}, values)
	is.NoError(terminal)
}

func TestNewProducer_FailureSurfaces(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	boom := errors.New("boom")
	it := NewProducer(func(emit EmitFunc[int]) *Promise[struct{}] {
		emit(1)
		return Failure[struct{}](boom)
	})

	var values []int
	var terminal error
	l.Defer(func(WatcherID, any) error {
		pump(t, it, &values, func(err error) { terminal = err })
		return nil
	}, nil)

	is.NoError(l.Run())
	is.Equal([]int{1}, values)
	is.ErrorIs(terminal, boom)
}

// A backpressure-respecting producer that observes disposal fails its
// completion with the disposed error; NewProducer swallows it instead of
// double-finalizing the stream.
func TestNewProducer_DisposalWindsProducerDown(t *testing.T) {
	is := assert.New(t)

	l := installLoop(t)

	var producerErr error
	var it *Iterator[int]
	it = NewProducer(func(emit EmitFunc[int]) *Promise[struct{}] {
		completion := NewDeferred[struct{}]()
		emit(1).When(func(err error, _ struct{}) {
			if err != nil {
				producerErr = err
				completion.Fail(err)
				return
			}
			emit(2).When(func(err error, _ struct{}) {
				if err != nil {
					producerErr = err
					completion.Fail(err)
					return
				}
				completion.Resolve(struct{}{})
			})
		})
		return completion.Promise()
	})

	l.Defer(func(WatcherID, any) error {
		it.Dispose()
		return nil
	}, nil)

	is.NoError(l.Run())
	is.ErrorIs(producerErr, ErrDisposed)
}
