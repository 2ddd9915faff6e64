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

package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pieterhop/android-runner/adb"
	"github.com/pieterhop/android-runner/aggregate"
	"github.com/pieterhop/android-runner/capture"
	"github.com/pieterhop/android-runner/componentparser"
	"github.com/pieterhop/android-runner/config"
	"github.com/pieterhop/android-runner/historianutils"
)

// job is one subject to profile, repeated on every device.
type job struct {
	// path is the subject directory relative to the device directory.
	path string
	app  string
	// launch brings the subject to the foreground once tracing has started.
	launch func(ctx context.Context, d adb.Device) error
}

// plan lists the jobs of an experiment in configuration order.
func plan(c *config.Config) ([]job, error) {
	var jobs []job
	switch c.Type {
	case config.Native:
		for _, app := range c.Apps {
			app := app
			jobs = append(jobs, job{
				path: app,
				app:  app,
				launch: func(ctx context.Context, d adb.Device) error {
					return adb.LaunchApp(ctx, d, app)
				},
			})
		}
	case config.Web:
		browsers, err := c.ResolveBrowsers()
		if err != nil {
			return nil, err
		}
		for _, url := range c.URLs {
			for _, b := range browsers {
				url, b := url, b
				jobs = append(jobs, job{
					path: filepath.Join(historianutils.Slug(url), b.Name()),
					app:  b.PackageName(),
					launch: func(ctx context.Context, d adb.Device) error {
						return b.Launch(ctx, d, url)
					},
				})
			}
		}
	default:
		return nil, errors.Errorf("unknown experiment type %q", c.Type)
	}
	return jobs, nil
}

// subjectDirs returns the artifact directories of jobs on device, in job order.
func subjectDirs(outputDir, device string, jobs []job) []string {
	var dirs []string
	for _, j := range jobs {
		dirs = append(dirs, filepath.Join(outputDir, device, j.path, aggregate.ArtifactDir))
	}
	return dirs
}

// nextStart waits until the wall clock second differs from the previous session's so
// artifact names on one device never collide.
func nextStart(ctx context.Context, last time.Time) (time.Time, error) {
	now := time.Now()
	if last.IsZero() || now.Format(capture.StampLayout) != last.Format(capture.StampLayout) {
		return now, nil
	}
	t := time.NewTimer(time.Until(now.Truncate(time.Second).Add(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return time.Now(), nil
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

type runner struct {
	cfg    *config.Config
	jobs   []job
	parser componentparser.Parser
	log    hclog.Logger
	// newDevice connects to a device by serial.
	newDevice func(serial string) adb.Device
}

// runDevice profiles every job on one device, one session at a time, then aggregates each
// subject. Session failures are logged and do not stop the remaining sessions.
func (r *runner) runDevice(ctx context.Context, serial string) error {
	dev := r.newDevice(serial)
	log := r.log.With("device", serial)
	ctrl := capture.NewController(dev, r.parser, capture.Options{
		PowerProfile:    r.cfg.PowerProfile,
		SystraceParsing: r.cfg.Systrace(),
		Cleanup:         r.cfg.Cleanup,
		Logger:          r.log,
	})

	dirs := subjectDirs(r.cfg.OutputDir, serial, r.jobs)
	var last time.Time
	for i, j := range r.jobs {
		if err := os.MkdirAll(dirs[i], 0755); err != nil {
			return errors.Wrap(err, "cannot create output directory")
		}
		for rep := 1; rep <= r.cfg.Repetitions; rep++ {
			start, err := nextStart(ctx, last)
			if err != nil {
				return err
			}
			last = start
			s := capture.NewSession(serial, j.app, start, r.cfg.RunDuration(), dirs[i])
			log.Info("starting session", "session", s.Stamp(), "subject", j.path, "repetition", rep)
			j := j
			if _, err := ctrl.Run(ctx, s, func(ctx context.Context) error { return j.launch(ctx, dev) }); err != nil {
				log.Error("session failed", "session", s.Stamp(), "subject", j.path, "error", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	agg := aggregate.New(log)
	for _, dir := range dirs {
		if _, err := agg.WriteSubject(dir); err != nil {
			log.Warn("subject not aggregated", "dir", dir, "error", err)
		}
	}
	return nil
}

// run profiles all devices concurrently. A device failing does not stop the others.
func (r *runner) run(ctx context.Context) error {
	var g errgroup.Group
	for _, serial := range r.cfg.Devices {
		serial := serial
		g.Go(func() error {
			if err := r.runDevice(ctx, serial); err != nil {
				r.log.Error("device run aborted", "device", serial, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func newCaptureCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Profile every configured subject on every configured device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(g.logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			timeout, err := cfg.Timeout()
			if err != nil {
				return err
			}
			jobs, err := plan(cfg)
			if err != nil {
				return err
			}
			r := &runner{
				cfg:    cfg,
				jobs:   jobs,
				parser: componentparser.Exec{Command: cfg.ParserCommand},
				log:    log,
				newDevice: func(serial string) adb.Device {
					return adb.New(cfg.ADBPath, serial, timeout)
				},
			}
			return r.run(cmd.Context())
		},
	}
}
