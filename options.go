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
	"github.com/joeycumines/logiface"
)

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger attaches a structured logger to the loop. logiface loggers are
// nil-safe, so the zero configuration costs a single nil check per event.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(l *Loop) {
		l.log = logger
	}
}

// WithMultiplexer injects the Multiplexer used for I/O readiness and signal
// delivery, replacing the lazily created platform default. Driver tests use
// this to stay off real file descriptors.
func WithMultiplexer(mux Multiplexer) Option {
	return func(l *Loop) {
		l.mux = mux
	}
}
