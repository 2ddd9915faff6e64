// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSkipped is returned by Collect for a session that failed before collection.
var ErrSkipped = errors.New("collection skipped for errored session")

func describe(kind, device, session, stage string, err error) string {
	return fmt.Sprintf("%s on device %s (session %s) at %s: %v", kind, device, session, stage, err)
}

// StartError is returned when the device reports a failure while the capture is being started.
type StartError struct {
	Device  string
	Session string
	Stage   string
	Err     error
}

func (e *StartError) Error() string {
	return describe("capture start failed", e.Device, e.Session, e.Stage, e.Err)
}

// Cause returns the underlying error.
func (e *StartError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error { return e.Err }

// StopError is returned when the device reports a failure, or times out, while stopping the capture.
type StopError struct {
	Device  string
	Session string
	Stage   string
	Err     error
}

func (e *StopError) Error() string {
	return describe("capture stop failed", e.Device, e.Session, e.Stage, e.Err)
}

// Cause returns the underlying error.
func (e *StopError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *StopError) Unwrap() error { return e.Err }

// CollectionError is returned when pulling, decoding or parsing the session artifacts fails.
type CollectionError struct {
	Device  string
	Session string
	Stage   string
	Err     error
}

func (e *CollectionError) Error() string {
	return describe("collection failed", e.Device, e.Session, e.Stage, e.Err)
}

// Cause returns the underlying error.
func (e *CollectionError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *CollectionError) Unwrap() error { return e.Err }
