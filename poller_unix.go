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

//go:build unix

package aio

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// newDefaultMultiplexer builds the platform multiplexer the loop falls back
// to when none was injected.
func newDefaultMultiplexer() (Multiplexer, error) {
	return NewPollMultiplexer()
}

var _ Multiplexer = (*pollMultiplexer)(nil)

// pollMultiplexer implements Multiplexer with poll(2). Signal deliveries are
// forwarded into the poll through a self-pipe: a helper goroutine drains the
// os/signal channel, records the signal, and writes one byte to the pipe so
// a blocked Poll wakes up. The pipe's read end is part of every poll set.
type pollMultiplexer struct {
	read  map[int]Stream
	write map[int]Stream

	wakeRead  int
	wakeWrite int

	sigCh      chan os.Signal
	subscribed []os.Signal
	forwarder  sync.Once
	done       chan struct{}

	// pendingMu guards pending, the only state shared with the forwarder.
	pendingMu sync.Mutex
	pending   []os.Signal

	closed bool
}

// NewPollMultiplexer returns the default poll(2)-backed Multiplexer.
func NewPollMultiplexer() (Multiplexer, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	_ = unix.SetNonblock(p[0], true)
	_ = unix.SetNonblock(p[1], true)

	return &pollMultiplexer{
		read:      map[int]Stream{},
		write:     map[int]Stream{},
		wakeRead:  p[0],
		wakeWrite: p[1],
		sigCh:     make(chan os.Signal, 8),
		done:      make(chan struct{}),
	}, nil
}

// Implements Multiplexer.
func (m *pollMultiplexer) Watch(stream Stream, mode IOMode) error {
	fd := int(stream.Fd())
	if fd < 0 {
		return ErrInvalidArgument
	}

	if mode == IORead {
		m.read[fd] = stream
	} else {
		m.write[fd] = stream
	}

	return nil
}

// Implements Multiplexer.
func (m *pollMultiplexer) Unwatch(stream Stream, mode IOMode) {
	fd := int(stream.Fd())
	if mode == IORead {
		delete(m.read, fd)
	} else {
		delete(m.write, fd)
	}
}

// Implements Multiplexer.
func (m *pollMultiplexer) NotifySignal(sig os.Signal) error {
	if slices.Contains(m.subscribed, sig) {
		return nil
	}

	m.subscribed = append(m.subscribed, sig)
	signal.Notify(m.sigCh, sig)

	m.forwarder.Do(func() {
		go m.forwardSignals()
	})

	return nil
}

// Implements Multiplexer.
func (m *pollMultiplexer) IgnoreSignal(sig os.Signal) {
	i := slices.Index(m.subscribed, sig)
	if i < 0 {
		return
	}
	m.subscribed = slices.Delete(m.subscribed, i, i+1)

	// os/signal has no per-signal unsubscribe for a channel: drop the whole
	// registration and re-register what remains.
	signal.Stop(m.sigCh)
	for _, s := range m.subscribed {
		signal.Notify(m.sigCh, s)
	}
}

// forwardSignals runs off the loop goroutine and is the only writer of
// pending besides Poll's consumption.
func (m *pollMultiplexer) forwardSignals() {
	for {
		select {
		case sig := <-m.sigCh:
			m.pendingMu.Lock()
			m.pending = append(m.pending, sig)
			m.pendingMu.Unlock()
			m.wake()
		case <-m.done:
			return
		}
	}
}

// wake makes a blocked Poll return. A full pipe already guarantees a wakeup.
func (m *pollMultiplexer) wake() {
	var b [1]byte
	_, _ = unix.Write(m.wakeWrite, b[:])
}

// Implements Multiplexer.
func (m *pollMultiplexer) Poll(timeout time.Duration) (Readiness, error) {
	fds := make([]unix.PollFd, 0, 1+len(m.read)+len(m.write))
	fds = append(fds, unix.PollFd{Fd: int32(m.wakeRead), Events: unix.POLLIN})

	events := map[int]int16{}
	for fd := range m.read {
		events[fd] |= unix.POLLIN
	}
	for fd := range m.write {
		events[fd] |= unix.POLLOUT
	}

	keys := make([]int, 0, len(events))
	for fd := range events {
		keys = append(keys, fd)
	}
	slices.Sort(keys)
	for _, fd := range keys {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events[fd]})
	}

	n, err := unix.Poll(fds, pollTimeout(timeout))
	if err != nil && err != unix.EINTR {
		return Readiness{}, err
	}

	var readiness Readiness
	if n > 0 {
		for _, pfd := range fds[1:] {
			if pfd.Revents == 0 {
				continue
			}
			fd := int(pfd.Fd)
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				if s, ok := m.read[fd]; ok {
					readiness.Readable = append(readiness.Readable, s)
				}
			}
			if pfd.Revents&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
				if s, ok := m.write[fd]; ok {
					readiness.Writable = append(readiness.Writable, s)
				}
			}
		}
		if fds[0].Revents != 0 {
			m.drainWakePipe()
		}
	}

	m.pendingMu.Lock()
	readiness.Signals = m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	return readiness, nil
}

func (m *pollMultiplexer) drainWakePipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeRead, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Implements Multiplexer.
func (m *pollMultiplexer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	signal.Stop(m.sigCh)
	close(m.done)

	errR := unix.Close(m.wakeRead)
	errW := unix.Close(m.wakeWrite)
	if errR != nil {
		return errR
	}
	return errW
}

// pollTimeout converts a Poll timeout to poll(2) milliseconds, rounding
// sub-millisecond waits up so they do not busy-loop.
func pollTimeout(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return ms
}
