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
	"strconv"
)

// watcher is one registered interest in an event source. All fields are
// owned by the loop goroutine.
type watcher struct {
	id    WatcherID
	kind  WatcherKind
	datum any

	// enabled is flipped synchronously by Enable/Disable; activated only at
	// the start of a tick. A watcher fires when both are set, which is what
	// keeps a callback out of the tick that enabled it.
	enabled    bool
	activated  bool
	referenced bool
	cancelled  bool

	deferCb DeferCallback
	timerCb TimerCallback
	ioCb    IOCallback
	sigCb   SignalCallback

	// interval in ms for delay/repeat; deadline on the monotonic ms clock.
	interval int64
	deadline int64
	// gen invalidates stale timer heap entries after disable/enable cycles.
	gen uint32

	stream Stream
	signal os.Signal
}

// fireable reports whether the watcher may dispatch in the current tick.
func (w *watcher) fireable() bool {
	return w.enabled && w.activated && !w.cancelled
}

// nextWatcherID mints the next opaque identifier. Purely sequential under
// the hood, but callers must treat the token as opaque.
func (l *Loop) nextWatcherID() WatcherID {
	l.lastID++
	return WatcherID("w" + strconv.FormatUint(l.lastID, 36))
}

// newWatcher allocates and registers a watcher in the enabled, not yet
// activated state.
func (l *Loop) newWatcher(kind WatcherKind, datum any) *watcher {
	w := &watcher{
		id:         l.nextWatcherID(),
		kind:       kind,
		datum:      datum,
		enabled:    true,
		referenced: true,
	}
	l.watchers[w.id] = w
	l.pendingActivation = append(l.pendingActivation, w)

	l.log.Trace().
		Str("watcher", string(w.id)).
		Stringer("kind", kind).
		Log("watcher registered")

	return w
}

// invalidate removes a one-shot watcher from the registry so that its id is
// rejected from this point on. Called before the callback runs.
func (l *Loop) invalidate(w *watcher) {
	w.enabled = false
	w.activated = false
	w.cancelled = true
	delete(l.watchers, w.id)
}
