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

// Package capture records battery statistics and a kernel trace for an app on a device,
// and turns them into per-run energy result files.
package capture

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/pieterhop/android-runner/adb"
	"github.com/pieterhop/android-runner/batterystats"
	"github.com/pieterhop/android-runner/componentparser"
	"github.com/pieterhop/android-runner/csv"
	"github.com/pieterhop/android-runner/historianutils"
	"github.com/pieterhop/android-runner/kernel"
)

const (
	// RemoteTmpDir is the device directory the trace is flushed to.
	RemoteTmpDir = "/storage/self/primary/tmp"
	// RemoteTrace is the device file the trace is flushed to.
	RemoteTrace = RemoteTmpDir + "/atrace.out"

	// DefaultBufferKB is the atrace ring buffer size per CPU.
	DefaultBufferKB = 10240

	tracingOnPath = "/sys/kernel/debug/tracing/tracing_on"

	// From Android 11 (API level 30) /mnt/sdcard cannot be accessed via adb, but /sdcard can.
	scopedStorageAPILevel = 30
)

// DefaultCategories are the atrace categories captured for every session.
var DefaultCategories = []string{"freq", "idle"}

// Options configures a Controller.
type Options struct {
	// PowerProfile is the local path of the device power profile handed to the component parser.
	PowerProfile string
	// SystraceParsing enables attributing the decoded trace to components.
	SystraceParsing bool
	// Cleanup removes intermediate artifacts once results are written.
	Cleanup    bool
	BufferKB   int
	Categories []string
	Logger     hclog.Logger
}

// Result is the outcome of a collected session.
type Result struct {
	History []csv.ComponentRow
	Trace   []csv.ComponentRow
	Joules  float64
}

// Controller drives capture sessions on one device. Sessions on one Controller must run sequentially.
type Controller struct {
	dev    adb.Device
	parser componentparser.Parser
	opts   Options
	log    hclog.Logger
}

// NewController returns a Controller for dev.
func NewController(dev adb.Device, parser componentparser.Parser, opts Options) *Controller {
	if opts.BufferKB <= 0 {
		opts.BufferKB = DefaultBufferKB
	}
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories
	}
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Controller{dev: dev, parser: parser, opts: opts, log: log.With("device", dev.Serial())}
}

func (c *Controller) logger(s *Session) hclog.Logger {
	return c.log.With("session", s.Stamp())
}

// Start resets the battery counters and starts an asynchronous trace of the session app.
// On failure the session is Errored, but Stop must still be called to disable tracing.
func (c *Controller) Start(ctx context.Context, s *Session) error {
	if s.state != Idle {
		return errors.Errorf("cannot start session in state %v", s.state)
	}
	s.state = Starting
	fail := func(stage string, err error) error {
		return s.fail(&StartError{Device: s.Device, Session: s.Stamp(), Stage: stage, Err: err})
	}

	if err := c.dev.ResetCounters(ctx); err != nil {
		return fail("reset counters", err)
	}
	c.logger(s).Debug("batterystats cleared")
	if _, err := c.dev.Shell(ctx, "mkdir -p "+RemoteTmpDir); err != nil {
		return fail("create remote directory", err)
	}
	// Disable tracing in case a previous session left it enabled.
	if _, err := c.dev.Shell(ctx, "echo 0 > "+tracingOnPath); err != nil {
		return fail("disable tracing", err)
	}
	if err := c.dev.StartTrace(ctx, s.App, c.opts.Categories, c.opts.BufferKB); err != nil {
		return fail("start trace", err)
	}
	s.state = Running
	c.logger(s).Info("capture started", "app", s.App)
	return nil
}

// Stop stops the asynchronous trace and flushes it to the device.
// It is issued even for sessions that errored while starting; those stay Errored.
func (c *Controller) Stop(ctx context.Context, s *Session) error {
	if s.state != Running && s.state != Errored {
		return errors.Errorf("cannot stop session in state %v", s.state)
	}
	errored := s.state == Errored
	if err := c.dev.StopTrace(ctx, RemoteTrace); err != nil {
		return s.fail(&StopError{Device: s.Device, Session: s.Stamp(), Stage: "stop trace", Err: err})
	}
	if errored {
		c.logger(s).Debug("tracing disabled for errored session")
		return nil
	}
	s.state = Stopping
	c.logger(s).Info("capture stopped")
	return nil
}

// Collect pulls the session artifacts, decodes the trace, computes the consumed energy and
// writes the result files. It returns ErrSkipped for an errored session.
func (c *Controller) Collect(ctx context.Context, s *Session) (*Result, error) {
	if s.state == Errored {
		c.logger(s).Warn("skipping collection", "reason", s.err)
		return nil, ErrSkipped
	}
	if s.state != Stopping {
		return nil, errors.Errorf("cannot collect session in state %v", s.state)
	}
	fail := func(stage string, err error) (*Result, error) {
		return nil, s.fail(&CollectionError{Device: s.Device, Session: s.Stamp(), Stage: stage, Err: err})
	}

	api, err := adb.APILevel(ctx, c.dev)
	if err != nil {
		return fail("read api level", err)
	}
	if err := c.pullLogcat(ctx, s, api); err != nil {
		return fail("pull logcat", err)
	}

	res := &Result{}
	history, err := c.dev.Shell(ctx, "dumpsys batterystats --history")
	if err != nil {
		return fail("dump battery history", err)
	}
	if err := ioutil.WriteFile(s.artifacts.History, []byte(history), 0644); err != nil {
		return fail("write battery history", err)
	}
	if res.History, err = c.parser.ParseBatteryHistory(ctx, s.App, s.artifacts.History, c.opts.PowerProfile); err != nil {
		return fail("parse battery history", err)
	}

	if res.Joules, err = c.consumedJoules(ctx); err != nil {
		return fail("compute consumed energy", err)
	}

	trace, err := c.pullTrace(ctx, s, api)
	if err != nil {
		return fail("decode trace", err)
	}
	if c.opts.SystraceParsing {
		res.Trace, err = c.parser.ParseTrace(ctx, s.App, s.artifacts.Trace, s.artifacts.Logcat, s.artifacts.History, c.opts.PowerProfile, trace.Cores, trace.APILevel)
		if err != nil {
			return fail("parse trace", err)
		}
	}

	if err := writeResults(s.artifacts, res); err != nil {
		return fail("write results", err)
	}
	s.state = Collected
	c.logger(s).Info("results written", "file", s.artifacts.Results, "joules", res.Joules)
	return res, nil
}

func (c *Controller) pullLogcat(ctx context.Context, s *Session, api int) error {
	dir := "/mnt/sdcard"
	if api >= scopedStorageAPILevel {
		dir = "/sdcard"
	}
	remote := dir + "/logcat.txt"
	if _, err := c.dev.Shell(ctx, fmt.Sprintf("logcat -f %s -d", remote)); err != nil {
		return err
	}
	if err := c.dev.Pull(ctx, remote, s.artifacts.Logcat); err != nil {
		return err
	}
	_, err := c.dev.Shell(ctx, "rm -f "+remote)
	return err
}

func (c *Controller) consumedJoules(ctx context.Context) (float64, error) {
	drain, err := c.dev.Shell(ctx, `dumpsys batterystats | grep "Computed drain:"`)
	if err != nil {
		return 0, err
	}
	volt, err := c.dev.Shell(ctx, `dumpsys batterystats | grep "volt="`)
	if err != nil {
		return 0, err
	}
	return batterystats.ConsumedJoulesFromDump(drain + "\n" + volt)
}

// pullTrace pulls the flushed trace, replaces it with its decoded form and returns the
// device facts the trace parser needs alongside it.
func (c *Controller) pullTrace(ctx context.Context, s *Session, api int) (*kernel.Trace, error) {
	if err := c.dev.Pull(ctx, RemoteTrace, s.artifacts.Trace); err != nil {
		return nil, err
	}
	raw, err := ioutil.ReadFile(s.artifacts.Trace)
	if err != nil {
		return nil, err
	}
	data, err := kernel.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := ioutil.WriteFile(s.artifacts.Trace, data, 0644); err != nil {
		return nil, err
	}
	cores, err := adb.CoreCount(ctx, c.dev)
	if err != nil {
		return nil, err
	}
	return &kernel.Trace{Cores: cores, APILevel: api}, nil
}

func writeResults(a Artifacts, res *Result) error {
	f, err := os.Create(a.Results)
	if err != nil {
		return err
	}
	if err := csv.WriteResults(f, res.History, res.Trace); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	j, err := os.Create(a.Joules)
	if err != nil {
		return err
	}
	if err := csv.WriteJoules(j, res.Joules); err != nil {
		j.Close()
		return err
	}
	return j.Close()
}

// Cleanup removes the intermediate artifacts of the session, locally and on the device.
// Failures are logged as warnings and returned, but never fail the run.
func (c *Controller) Cleanup(ctx context.Context, s *Session, enabled bool) []error {
	if !enabled {
		return nil
	}
	var errs []error
	for _, f := range []string{s.artifacts.Trace, s.artifacts.Logcat, s.artifacts.History} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if _, err := c.dev.Shell(ctx, "rm -f "+RemoteTrace); err != nil {
		errs = append(errs, errors.Wrap(err, "failed to remove remote trace"))
	}
	if len(errs) > 0 {
		c.logger(s).Warn("cleanup incomplete", "errors", historianutils.ErrorsToString(errs))
	}
	return errs
}

// Run drives a session end to end: start, interact, wait for the session duration, stop,
// collect and clean up. Stop is always issued once Start was attempted, even if the context
// is done, so the device is never left tracing.
func (c *Controller) Run(ctx context.Context, s *Session, interact func(context.Context) error) (*Result, error) {
	startErr := c.Start(ctx, s)
	if startErr == nil {
		if err := c.exercise(ctx, s, interact); err != nil {
			s.fail(err)
		}
	}

	if err := c.Stop(context.WithoutCancel(ctx), s); err != nil {
		if startErr != nil {
			return nil, startErr
		}
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}
	if s.state == Errored {
		return nil, s.err
	}

	res, err := c.Collect(ctx, s)
	c.Cleanup(context.WithoutCancel(ctx), s, c.opts.Cleanup)
	return res, err
}

func (c *Controller) exercise(ctx context.Context, s *Session, interact func(context.Context) error) error {
	if interact != nil {
		if err := interact(ctx); err != nil {
			return errors.Wrap(err, "interaction failed")
		}
	}
	if s.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(s.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
