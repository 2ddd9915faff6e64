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

// Package kernel decodes kernel trace captures pulled from a device after an atrace session.
package kernel

import (
	"bytes"
	"compress/zlib"
	"io/ioutil"
	"regexp"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	// TraceFileRE is a regular expression to match the top line in an uncompressed kernel trace.
	TraceFileRE = regexp.MustCompile(`^# tracer`)

	// traceStartRE matches the sentinel atrace prints before the trace payload.
	traceStartRE = regexp.MustCompile(`TRACE:`)

	// statusLineRE matches the progress lines atrace interleaves with its output, e.g. "capturing trace... done".
	statusLineRE = regexp.MustCompile(`(?m)^capturing trace\.\.\.(?: done)?(?:\r*\n|$)`)

	// tracerLineRE matches a tracer header line anywhere in the text preceding the sentinel.
	tracerLineRE = regexp.MustCompile(`(?m)^# tracer`)
)

// ErrMissingTraceHeader is returned when the capture holds no TRACE: sentinel.
// This usually means the device is not rooted or tracing never started.
var ErrMissingTraceHeader = errors.New("unable to get atrace data, did you forget adb root?")

// ErrNotText is wrapped in a DecodeError when the decoded trace is not text.
var ErrNotText = errors.New("decoded trace is not valid text")

// DecodeError is returned when the payload is neither plain trace text nor valid zlib data
// inflating to text.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode trace data: " + e.Err.Error()
}

// Cause returns the underlying error.
func (e *DecodeError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Trace holds the device facts the per-component parser needs alongside a decoded trace file.
type Trace struct {
	// Cores is the number of logical CPU cores on the device.
	Cores int
	// APILevel is the platform SDK version of the device.
	APILevel int
}

// ExtractPayload splits the capture at the TRACE: sentinel, returning the text before it
// and the payload after it with atrace status lines removed.
func ExtractPayload(raw []byte) (preamble, payload []byte, err error) {
	loc := traceStartRE.FindIndex(raw)
	if loc == nil {
		return nil, nil, ErrMissingTraceHeader
	}
	preamble = raw[:loc[0]]
	payload = statusLineRE.ReplaceAll(raw[loc[1]:], nil)
	return preamble, payload, nil
}

// Normalize collapses the line endings added by adb shell.
// The style is detected from the start of the payload, so binary payloads that were not
// mangled by a pty are left untouched. A single leading newline is dropped.
func Normalize(payload []byte) []byte {
	switch {
	case bytes.HasPrefix(payload, []byte("\r\n")):
		payload = bytes.Replace(payload, []byte("\r\n"), []byte("\n"), -1)
	case bytes.HasPrefix(payload, []byte("\r\r\n")):
		// On Windows, adb adds an extra '\r' character for each line.
		payload = bytes.Replace(payload, []byte("\r\r\n"), []byte("\n"), -1)
	}
	return bytes.TrimPrefix(payload, []byte("\n"))
}

// IsTrace returns true if the given contents are an uncompressed kernel trace.
func IsTrace(f []byte) bool {
	return TraceFileRE.Match(f)
}

// isZlib reports whether b starts with a zlib stream header using the deflate method.
func isZlib(b []byte) bool {
	return len(b) >= 2 && b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// isPlain reports whether payload is already trace text. A payload without its own tracer
// header counts as text only if the tool announced a header before the sentinel and the
// payload is neither a zlib stream nor binary.
func isPlain(preamble, payload []byte) bool {
	if IsTrace(payload) {
		return true
	}
	return tracerLineRE.Match(preamble) && !isZlib(payload) && utf8.Valid(payload)
}

// Decode converts a raw atrace capture into plain trace text.
// The payload is inflated as zlib unless it is already text, and the result must be valid UTF-8.
func Decode(raw []byte) ([]byte, error) {
	preamble, payload, err := ExtractPayload(raw)
	if err != nil {
		return nil, err
	}
	payload = Normalize(payload)

	if !isPlain(preamble, payload) {
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, &DecodeError{err}
		}
		defer r.Close()
		if payload, err = ioutil.ReadAll(r); err != nil {
			return nil, &DecodeError{err}
		}
	}

	if !utf8.Valid(payload) {
		return nil, &DecodeError{ErrNotText}
	}

	// Enforce Unix line endings.
	payload = bytes.Replace(payload, []byte("\r"), nil, -1)
	return bytes.TrimLeft(payload, "\n"), nil
}
