// Copyright 2025 The Autopeer Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errdefs defines the error kinds shared across groundpeer components.
// Callers wrap these with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
package errdefs

import "errors"

var (
	// ErrNoDeviceFound means no unclaimed device accepted a handshake.
	ErrNoDeviceFound = errors.New("no device found")

	// ErrNotConnected means the session has no live vehicle link.
	ErrNotConnected = errors.New("vehicle not connected")

	ErrModeTimeout   = errors.New("mode change timed out")
	ErrArmTimeout    = errors.New("arm timed out")
	ErrDisarmTimeout = errors.New("disarm timed out")
	ErrLandTimeout   = errors.New("land timed out")
	ErrStartTimeout  = errors.New("mission start timed out")

	// ErrFormat means a mission file is malformed or missing its header.
	ErrFormat = errors.New("malformed mission file")

	// ErrValidation means the input to an operation was rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrIO means reading or writing a file failed.
	ErrIO = errors.New("i/o failure")
)

// IsTimeout reports whether err is one of the bounded-poll timeout kinds.
func IsTimeout(err error) bool {
	for _, kind := range []error{ErrModeTimeout, ErrArmTimeout, ErrDisarmTimeout, ErrLandTimeout, ErrStartTimeout} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
