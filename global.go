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
	"sync/atomic"
)

// currentDriver stores the process-wide driver. It is accessed via
// atomic.Value so tests can swap drivers without racing the loop goroutine
// of a previous case. The box keeps a nil driver storable.
var currentDriver atomic.Value // driverBox

type driverBox struct {
	driver Driver
}

func init() {
	currentDriver.Store(driverBox{driver: NewLoop()})
}

// SetDriver installs the process-wide driver. Passing nil clears it, after
// which every passthrough fails with ErrNoDriver. A default *Loop is
// installed at package initialization, so casual callers never set one.
func SetDriver(driver Driver) {
	currentDriver.Store(driverBox{driver: driver})
}

// CurrentDriver returns the installed driver, or nil after SetDriver(nil).
func CurrentDriver() Driver {
	box, _ := currentDriver.Load().(driverBox)
	return box.driver
}

// mustDriver is the internal lookup for code that cannot proceed without a
// driver, such as promise continuation dispatch.
func mustDriver() Driver {
	driver := CurrentDriver()
	if driver == nil {
		panic(ErrNoDriver)
	}
	return driver
}

// Run forwards to the installed driver.
func Run() error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	return driver.Run()
}

// Stop forwards to the installed driver.
func Stop() error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	driver.Stop()
	return nil
}

// Defer forwards to the installed driver.
func Defer(cb DeferCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.Defer(cb, datum), nil
}

// Delay forwards to the installed driver.
func Delay(ms int64, cb TimerCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.Delay(ms, cb, datum)
}

// Repeat forwards to the installed driver.
func Repeat(ms int64, cb TimerCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.Repeat(ms, cb, datum)
}

// OnReadable forwards to the installed driver.
func OnReadable(stream Stream, cb IOCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.OnReadable(stream, cb, datum)
}

// OnWritable forwards to the installed driver.
func OnWritable(stream Stream, cb IOCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.OnWritable(stream, cb, datum)
}

// OnSignal forwards to the installed driver.
func OnSignal(sig os.Signal, cb SignalCallback, datum any) (WatcherID, error) {
	driver := CurrentDriver()
	if driver == nil {
		return "", ErrNoDriver
	}
	return driver.OnSignal(sig, cb, datum)
}

// Enable forwards to the installed driver.
func Enable(id WatcherID) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	return driver.Enable(id)
}

// Disable forwards to the installed driver.
func Disable(id WatcherID) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	driver.Disable(id)
	return nil
}

// Cancel forwards to the installed driver.
func Cancel(id WatcherID) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	driver.Cancel(id)
	return nil
}

// Reference forwards to the installed driver.
func Reference(id WatcherID) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	return driver.Reference(id)
}

// Unreference forwards to the installed driver.
func Unreference(id WatcherID) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	return driver.Unreference(id)
}

// SetErrorHandler forwards to the installed driver and returns the handler
// it replaced.
func SetErrorHandler(handler ErrorHandler) (ErrorHandler, error) {
	driver := CurrentDriver()
	if driver == nil {
		return nil, ErrNoDriver
	}
	return driver.SetErrorHandler(handler), nil
}

// SetState forwards to the installed driver.
func SetState(key string, value any) error {
	driver := CurrentDriver()
	if driver == nil {
		return ErrNoDriver
	}
	driver.SetState(key, value)
	return nil
}

// GetState forwards to the installed driver.
func GetState(key string) (any, error) {
	driver := CurrentDriver()
	if driver == nil {
		return nil, ErrNoDriver
	}
	return driver.GetState(key), nil
}

// GetInfo forwards to the installed driver.
func GetInfo() (Info, error) {
	driver := CurrentDriver()
	if driver == nil {
		return Info{}, ErrNoDriver
	}
	return driver.Info(), nil
}
