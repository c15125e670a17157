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

//go:build !unix

package aio

import (
	"os"
	"time"
)

// newDefaultMultiplexer builds the platform multiplexer. Platforms without
// poll(2) get a timer-only stub: defers and timers work, I/O and signal
// watchers fail with ErrUnsupportedFeature.
func newDefaultMultiplexer() (Multiplexer, error) {
	return &sleepMultiplexer{}, nil
}

var _ Multiplexer = (*sleepMultiplexer)(nil)

type sleepMultiplexer struct{}

// Implements Multiplexer.
func (*sleepMultiplexer) Watch(Stream, IOMode) error {
	return ErrUnsupportedFeature
}

// Implements Multiplexer.
func (*sleepMultiplexer) Unwatch(Stream, IOMode) {}

// Implements Multiplexer.
func (*sleepMultiplexer) NotifySignal(os.Signal) error {
	return ErrUnsupportedFeature
}

// Implements Multiplexer.
func (*sleepMultiplexer) IgnoreSignal(os.Signal) {}

// Implements Multiplexer.
func (*sleepMultiplexer) Poll(timeout time.Duration) (Readiness, error) {
	// Nothing can be watched, so there is never a reason to block without
	// bound; an indefinite timeout only occurs with watchers this stub
	// refused to register.
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return Readiness{}, nil
}

// Implements Multiplexer.
func (*sleepMultiplexer) Close() error {
	return nil
}
