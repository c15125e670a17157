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
	"container/heap"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/samber/aio/internal/xtime"
)

var _ Driver = (*Loop)(nil)

// Loop is the default Driver. One tick dispatches, in this order: activated
// defer watchers in enabling order, due timers by ascending deadline, stream
// readiness reported by the multiplexer, and signals accumulated since the
// previous tick. The loop then blocks in the multiplexer until the nearest
// timer deadline, or indefinitely when only I/O and signal watchers remain.
//
// A watcher enabled during a tick activates at the start of the next tick
// and can never fire in the tick that enabled it. Disabling takes effect
// immediately, even against watchers already queued in the current tick.
//
// The loop performs no locking: construct it, register watchers, and call
// Run from a single goroutine. Callbacks always run on that goroutine.
type Loop struct {
	watchers map[WatcherID]*watcher
	lastID   uint64

	// pendingActivation holds enabled-but-not-yet-activated watchers, in
	// enabling order; activation happens at the start of each tick.
	pendingActivation []*watcher
	deferQueue        []*watcher
	timers            timerHeap
	readable          map[uintptr][]*watcher
	writable          map[uintptr][]*watcher
	signals           map[os.Signal][]*watcher

	state        map[string]any
	errorHandler ErrorHandler

	// mux is created lazily by the first I/O or signal watcher unless
	// injected with WithMultiplexer.
	mux    Multiplexer
	muxErr error

	log *logiface.Logger[logiface.Event]

	running bool
	stopped bool
	fatal   error
}

// NewLoop builds a stopped, empty loop.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		watchers: map[WatcherID]*watcher{},
		readable: map[uintptr][]*watcher{},
		writable: map[uintptr][]*watcher{},
		signals:  map[os.Signal][]*watcher{},
		state:    map[string]any{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Close releases the multiplexer and its OS resources. Watcher state is left
// untouched; a closed loop must not be run again with I/O watchers.
func (l *Loop) Close() error {
	if l.mux == nil {
		return nil
	}
	mux := l.mux
	l.mux = nil
	return mux.Close()
}

// Implements Driver.
func (l *Loop) Run() error {
	if l.running {
		return ErrAlreadyRunning
	}
	l.running = true
	l.log.Debug().Log("loop running")

	defer func() {
		l.running = false
		l.stopped = false
		l.fatal = nil
		l.log.Debug().Log("loop returned")
	}()

	for l.fatal == nil && !l.stopped && l.hasReferencedEnabled() {
		l.tick()
	}

	return l.fatal
}

// Implements Driver.
func (l *Loop) Stop() {
	l.stopped = true
}

// Implements Driver.
func (l *Loop) Defer(cb DeferCallback, datum any) WatcherID {
	if cb == nil {
		panic(ErrInvalidArgument)
	}

	w := l.newWatcher(WatcherDefer, datum)
	w.deferCb = cb
	return w.id
}

// Implements Driver.
func (l *Loop) Delay(ms int64, cb TimerCallback, datum any) (WatcherID, error) {
	return l.newTimer(WatcherDelay, ms, cb, datum)
}

// Implements Driver.
func (l *Loop) Repeat(ms int64, cb TimerCallback, datum any) (WatcherID, error) {
	return l.newTimer(WatcherRepeat, ms, cb, datum)
}

func (l *Loop) newTimer(kind WatcherKind, ms int64, cb TimerCallback, datum any) (WatcherID, error) {
	if ms < 0 || cb == nil {
		return "", ErrInvalidArgument
	}

	w := l.newWatcher(kind, datum)
	w.timerCb = cb
	w.interval = ms
	w.deadline = xtime.NowMilliMonotonic() + ms
	return w.id, nil
}

// Implements Driver.
func (l *Loop) OnReadable(stream Stream, cb IOCallback, datum any) (WatcherID, error) {
	return l.newIO(WatcherReadable, stream, cb, datum)
}

// Implements Driver.
func (l *Loop) OnWritable(stream Stream, cb IOCallback, datum any) (WatcherID, error) {
	return l.newIO(WatcherWritable, stream, cb, datum)
}

func (l *Loop) newIO(kind WatcherKind, stream Stream, cb IOCallback, datum any) (WatcherID, error) {
	if stream == nil || cb == nil {
		return "", ErrInvalidArgument
	}
	if _, err := l.multiplexer(); err != nil {
		return "", err
	}

	w := l.newWatcher(kind, datum)
	w.ioCb = cb
	w.stream = stream

	if err := l.attachIO(w); err != nil {
		l.invalidate(w)
		return "", err
	}
	return w.id, nil
}

// Implements Driver.
func (l *Loop) OnSignal(sig os.Signal, cb SignalCallback, datum any) (WatcherID, error) {
	if sig == nil || cb == nil {
		return "", ErrInvalidArgument
	}
	if _, err := l.multiplexer(); err != nil {
		return "", err
	}

	w := l.newWatcher(WatcherSignal, datum)
	w.sigCb = cb
	w.signal = sig

	if err := l.attachSignal(w); err != nil {
		l.invalidate(w)
		return "", err
	}
	return w.id, nil
}

// Implements Driver.
func (l *Loop) Enable(id WatcherID) error {
	w, ok := l.watchers[id]
	if !ok {
		return ErrInvalidWatcher
	}
	if w.enabled {
		return nil
	}

	w.enabled = true

	switch w.kind {
	case WatcherDelay, WatcherRepeat:
		// re-enabling restarts the timer from now
		w.deadline = xtime.NowMilliMonotonic() + w.interval
		w.gen++
	case WatcherReadable, WatcherWritable:
		if err := l.attachIO(w); err != nil {
			w.enabled = false
			return err
		}
	case WatcherSignal:
		if err := l.attachSignal(w); err != nil {
			w.enabled = false
			return err
		}
	}

	l.pendingActivation = append(l.pendingActivation, w)
	return nil
}

// Implements Driver.
func (l *Loop) Disable(id WatcherID) {
	w, ok := l.watchers[id]
	if !ok || !w.enabled {
		return
	}

	w.enabled = false
	w.activated = false

	switch w.kind {
	case WatcherReadable, WatcherWritable:
		l.detachIO(w)
	case WatcherSignal:
		l.detachSignal(w)
	}
}

// Implements Driver.
func (l *Loop) Cancel(id WatcherID) {
	w, ok := l.watchers[id]
	if !ok {
		return
	}

	l.Disable(id)
	w.cancelled = true
	delete(l.watchers, id)

	l.log.Trace().
		Str("watcher", string(id)).
		Stringer("kind", w.kind).
		Log("watcher cancelled")
}

// Implements Driver.
func (l *Loop) Reference(id WatcherID) error {
	w, ok := l.watchers[id]
	if !ok {
		return ErrInvalidWatcher
	}
	w.referenced = true
	return nil
}

// Implements Driver.
func (l *Loop) Unreference(id WatcherID) error {
	w, ok := l.watchers[id]
	if !ok {
		return ErrInvalidWatcher
	}
	w.referenced = false
	return nil
}

// Implements Driver.
func (l *Loop) SetErrorHandler(handler ErrorHandler) ErrorHandler {
	previous := l.errorHandler
	l.errorHandler = handler
	return previous
}

// Implements Driver.
func (l *Loop) SetState(key string, value any) {
	l.state[key] = value
}

// Implements Driver.
func (l *Loop) GetState(key string) any {
	return l.state[key]
}

// Implements Driver.
func (l *Loop) Info() Info {
	info := Info{Running: l.running}

	counts := map[WatcherKind]*WatcherCount{
		WatcherDefer:    &info.Defer,
		WatcherDelay:    &info.Delay,
		WatcherRepeat:   &info.Repeat,
		WatcherReadable: &info.OnReadable,
		WatcherWritable: &info.OnWritable,
		WatcherSignal:   &info.OnSignal,
	}

	for _, w := range l.watchers {
		if w.enabled {
			counts[w.kind].Enabled++
			if w.referenced {
				info.EnabledWatchers.Referenced++
			} else {
				info.EnabledWatchers.Unreferenced++
			}
		} else {
			counts[w.kind].Disabled++
		}
	}

	return info
}

func (l *Loop) hasReferencedEnabled() bool {
	return lo.SomeBy(lo.Values(l.watchers), func(w *watcher) bool {
		return w.enabled && w.referenced
	})
}

// tick runs one iteration: activation, dispatch in class order, then the
// blocking multiplexer wait.
func (l *Loop) tick() {
	l.activate()
	l.dispatchDefers()
	if l.fatal != nil {
		return
	}

	l.dispatchTimers(xtime.NowMilliMonotonic())
	if l.fatal != nil || l.stopped || !l.hasReferencedEnabled() {
		return
	}

	readiness, ok := l.poll(l.blockTimeout())
	if !ok {
		return
	}
	l.dispatchIO(readiness)
	if l.fatal != nil {
		return
	}
	l.dispatchSignals(readiness.Signals)
}

// activate moves watchers enabled during the previous tick into the live
// dispatch structures. This is the boundary that keeps a watcher from firing
// in its enabling tick.
func (l *Loop) activate() {
	pending := l.pendingActivation
	l.pendingActivation = nil

	for _, w := range pending {
		if w.cancelled || !w.enabled || w.activated {
			continue
		}
		w.activated = true

		switch w.kind {
		case WatcherDefer:
			l.deferQueue = append(l.deferQueue, w)
		case WatcherDelay, WatcherRepeat:
			heap.Push(&l.timers, timerEntry{w: w, deadline: w.deadline, gen: w.gen})
		default:
			// I/O and signal watchers are attached to the multiplexer at
			// enable time; activation only gates dispatch.
		}
	}
}

func (l *Loop) dispatchDefers() {
	queue := l.deferQueue
	l.deferQueue = nil

	for _, w := range queue {
		if l.fatal != nil {
			return
		}
		if !w.fireable() {
			continue
		}
		l.invalidate(w)
		l.invoke(func() error { return w.deferCb(w.id, w.datum) })
	}
}

func (l *Loop) dispatchTimers(now int64) {
	for l.timers.Len() > 0 {
		if l.fatal != nil {
			return
		}

		entry := l.timers[0]
		if entry.deadline > now {
			return
		}
		heap.Pop(&l.timers)

		w := entry.w
		if entry.gen != w.gen || !w.fireable() {
			continue
		}

		if w.kind == WatcherDelay {
			l.invalidate(w)
		} else {
			// coalescing: the next deadline counts from now, not from the
			// deadline that just expired
			w.deadline = now + w.interval
			w.gen++
			heap.Push(&l.timers, timerEntry{w: w, deadline: w.deadline, gen: w.gen})
		}

		l.invoke(func() error { return w.timerCb(w.id, w.datum) })
	}
}

func (l *Loop) dispatchIO(readiness Readiness) {
	for _, stream := range readiness.Readable {
		if l.fatal != nil {
			return
		}
		l.fireIO(l.readable[stream.Fd()], stream)
	}
	for _, stream := range readiness.Writable {
		if l.fatal != nil {
			return
		}
		l.fireIO(l.writable[stream.Fd()], stream)
	}
}

func (l *Loop) fireIO(watchers []*watcher, stream Stream) {
	for _, w := range slices.Clone(watchers) {
		if !w.fireable() {
			continue
		}
		l.invoke(func() error { return w.ioCb(w.id, stream, w.datum) })
	}
}

func (l *Loop) dispatchSignals(sigs []os.Signal) {
	for _, sig := range sigs {
		for _, w := range slices.Clone(l.signals[sig]) {
			if l.fatal != nil {
				return
			}
			if !w.fireable() {
				continue
			}
			l.invoke(func() error { return w.sigCb(w.id, w.signal, w.datum) })
		}
	}
}

// blockTimeout computes how long the tick may block: not at all when newly
// enabled watchers wait for activation, until the nearest timer deadline
// otherwise, and indefinitely when only I/O and signal watchers remain.
func (l *Loop) blockTimeout() time.Duration {
	if len(l.pendingActivation) > 0 {
		return 0
	}

	for l.timers.Len() > 0 {
		entry := l.timers[0]
		if entry.gen != entry.w.gen || !entry.w.fireable() {
			heap.Pop(&l.timers)
			continue
		}

		delta := entry.deadline - xtime.NowMilliMonotonic()
		if delta < 0 {
			delta = 0
		}
		return time.Duration(delta) * time.Millisecond
	}

	return -1
}

// poll blocks in the multiplexer, or just sleeps when no multiplexer was
// ever needed. The bool is false when the tick must end early.
func (l *Loop) poll(timeout time.Duration) (Readiness, bool) {
	if l.mux == nil {
		// only defers and timers exist, so timeout is always bounded here
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return Readiness{}, true
	}

	readiness, err := l.mux.Poll(timeout)
	if err != nil {
		l.funnel(err)
		return Readiness{}, false
	}
	return readiness, true
}

// invoke runs a callback with panic capture and routes failures into the
// error funnel.
func (l *Loop) invoke(call func() error) {
	if err := l.capture(call); err != nil {
		l.funnel(err)
	}
}

func (l *Loop) capture(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return call()
}

// funnel hands an error to the installed handler. Without a handler, or when
// the handler itself fails, the error is fatal to Run.
func (l *Loop) funnel(err error) {
	l.log.Err().Err(err).Log("watcher callback error")

	if l.errorHandler == nil {
		l.fatal = err
		return
	}
	handler := l.errorHandler
	if herr := l.capture(func() error { handler(err); return nil }); herr != nil {
		l.fatal = herr
	}
}

func (l *Loop) multiplexer() (Multiplexer, error) {
	if l.mux != nil {
		return l.mux, nil
	}
	if l.muxErr != nil {
		return nil, l.muxErr
	}

	mux, err := newDefaultMultiplexer()
	if err != nil {
		l.muxErr = err
		return nil, err
	}
	l.mux = mux
	return mux, nil
}

func (l *Loop) attachIO(w *watcher) error {
	byFd := l.readable
	mode := IORead
	if w.kind == WatcherWritable {
		byFd = l.writable
		mode = IOWrite
	}

	fd := w.stream.Fd()
	if len(byFd[fd]) == 0 {
		if err := l.mux.Watch(w.stream, mode); err != nil {
			return err
		}
	}
	byFd[fd] = append(byFd[fd], w)
	return nil
}

func (l *Loop) detachIO(w *watcher) {
	byFd := l.readable
	mode := IORead
	if w.kind == WatcherWritable {
		byFd = l.writable
		mode = IOWrite
	}

	fd := w.stream.Fd()
	byFd[fd] = lo.Without(byFd[fd], w)
	if len(byFd[fd]) == 0 {
		delete(byFd, fd)
		if l.mux != nil {
			l.mux.Unwatch(w.stream, mode)
		}
	}
}

func (l *Loop) attachSignal(w *watcher) error {
	if len(l.signals[w.signal]) == 0 {
		if err := l.mux.NotifySignal(w.signal); err != nil {
			return err
		}
	}
	l.signals[w.signal] = append(l.signals[w.signal], w)
	return nil
}

func (l *Loop) detachSignal(w *watcher) {
	l.signals[w.signal] = lo.Without(l.signals[w.signal], w)
	if len(l.signals[w.signal]) == 0 {
		delete(l.signals, w.signal)
		if l.mux != nil {
			l.mux.IgnoreSignal(w.signal)
		}
	}
}

// timerEntry is one heap slot; stale entries (generation mismatch) are
// skipped at pop time instead of being removed eagerly.
type timerEntry struct {
	w        *watcher
	deadline int64
	gen      uint32
}

type timerHeap []timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
