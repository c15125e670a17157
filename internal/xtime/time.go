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

package xtime

import "time"

// Timer deadlines must not move with wall-clock adjustments, so everything
// is measured against the monotonic clock carried by a time.Time captured at
// startup. time.Since reads only the monotonic component.
var startTime = time.Now()

// NowNanoMonotonic returns nanoseconds elapsed on the monotonic clock since
// package initialization.
func NowNanoMonotonic() int64 {
	return time.Since(startTime).Nanoseconds()
}

// NowMilliMonotonic returns milliseconds elapsed on the monotonic clock
// since package initialization, the resolution of loop timer deadlines.
func NowMilliMonotonic() int64 {
	return NowNanoMonotonic() / int64(time.Millisecond)
}
