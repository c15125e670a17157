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
	"os"
	"testing"
	"time"
)

// installLoop builds a fresh loop, installs it process-wide, and restores
// the previous driver when the test ends. Tests touching the installed
// driver must not run in parallel.
func installLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()

	previous := CurrentDriver()
	l := NewLoop(opts...)
	SetDriver(l)

	t.Cleanup(func() {
		SetDriver(previous)
		_ = l.Close()
	})

	return l
}

// pump drains an iterator from inside the loop, collecting values until the
// stream ends. outcome receives the terminal error, or nil on normal end.
func pump[T any](t *testing.T, it *Iterator[T], values *[]T, outcome func(err error)) {
	t.Helper()

	var step func()
	step = func() {
		it.Advance().When(func(err error, ok bool) {
			if err != nil {
				outcome(err)
				return
			}
			if !ok {
				outcome(nil)
				return
			}

			value, cerr := it.Current()
			if cerr != nil {
				outcome(cerr)
				return
			}
			*values = append(*values, value)
			step()
		})
	}
	step()
}

// fakeMultiplexer is a scripted Multiplexer: each Poll pops the next queued
// Readiness, so driver tests never touch real file descriptors.
type fakeMultiplexer struct {
	queued       []Readiness
	polls        int
	watched      []Stream
	signals      []os.Signal
	signalErr    error
	closed       bool
	lastTimeouts []time.Duration
}

var _ Multiplexer = (*fakeMultiplexer)(nil)

func (m *fakeMultiplexer) Watch(stream Stream, _ IOMode) error {
	m.watched = append(m.watched, stream)
	return nil
}

func (m *fakeMultiplexer) Unwatch(Stream, IOMode) {}

func (m *fakeMultiplexer) NotifySignal(sig os.Signal) error {
	if m.signalErr != nil {
		return m.signalErr
	}
	m.signals = append(m.signals, sig)
	return nil
}

func (m *fakeMultiplexer) IgnoreSignal(os.Signal) {}

func (m *fakeMultiplexer) Poll(timeout time.Duration) (Readiness, error) {
	m.polls++
	m.lastTimeouts = append(m.lastTimeouts, timeout)
	if len(m.queued) == 0 {
		return Readiness{}, nil
	}
	next := m.queued[0]
	m.queued = m.queued[1:]
	return next, nil
}

func (m *fakeMultiplexer) Close() error {
	m.closed = true
	return nil
}

// fakeStream is a Stream backed by nothing but a descriptor number.
type fakeStream uintptr

func (s fakeStream) Fd() uintptr { return uintptr(s) }
