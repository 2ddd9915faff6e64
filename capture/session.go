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
	"path/filepath"
	"time"
)

// StampLayout is the layout of the session timestamp used in artifact names.
const StampLayout = "2006.01.02_150405"

// State is the position of a session in the capture lifecycle.
type State int

// Session states. A session only moves forward; Errored is terminal.
const (
	Idle State = iota
	Starting
	Running
	// Stopping means the trace was stopped successfully and the session awaits collection.
	Stopping
	Collected
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Collected:
		return "collected"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Artifacts are the local files produced by one session.
type Artifacts struct {
	Trace   string
	Logcat  string
	History string
	Results string
	Joules  string
}

// Session is one profiling run of an app on a device.
// It is owned by a single Controller call sequence and must not be shared.
type Session struct {
	Device   string
	App      string
	Start    time.Time
	Duration time.Duration

	state     State
	err       error
	artifacts Artifacts
}

// NewSession returns an idle session whose artifacts are written to outputDir.
// Artifact names carry the device serial and start time so parallel sessions never collide.
func NewSession(device, app string, start time.Time, duration time.Duration, outputDir string) *Session {
	s := &Session{Device: device, App: app, Start: start, Duration: duration}
	suffix := fmt.Sprintf("%s_%s", device, s.Stamp())
	results := fmt.Sprintf("results_%s.csv", suffix)
	s.artifacts = Artifacts{
		Trace:   filepath.Join(outputDir, fmt.Sprintf("systrace_%s.html", suffix)),
		Logcat:  filepath.Join(outputDir, fmt.Sprintf("logcat_%s.txt", suffix)),
		History: filepath.Join(outputDir, fmt.Sprintf("batterystats_history_%s.txt", suffix)),
		Results: filepath.Join(outputDir, results),
		Joules:  filepath.Join(outputDir, "Joule_"+results),
	}
	return s
}

// Stamp returns the session start time formatted for artifact names.
func (s *Session) Stamp() string {
	return s.Start.Format(StampLayout)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Err returns the failure that moved the session to Errored, if any.
func (s *Session) Err() error {
	return s.err
}

// Artifacts returns the local artifact paths of the session.
func (s *Session) Artifacts() Artifacts {
	return s.artifacts
}

func (s *Session) fail(err error) error {
	s.state = Errored
	if s.err == nil {
		s.err = err
	}
	return err
}
