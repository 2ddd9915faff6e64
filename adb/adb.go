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

// Package adb drives an Android device under test over the adb command line tool.
package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pieterhop/android-runner/historianutils"
)

// Device is the control channel to a device under test.
// Every call fails with a *DiagnosticError if the device reports anything on its error stream.
type Device interface {
	// Serial returns the adb serial number identifying the device.
	Serial() string
	// Shell runs cmd through the device shell and returns its stdout.
	Shell(ctx context.Context, cmd string) (string, error)
	// Pull copies remote to local.
	Pull(ctx context.Context, remote, local string) error
	// ResetCounters clears the battery statistics kept by the device.
	ResetCounters(ctx context.Context) error
	// StartTrace starts an asynchronous, compressed atrace capture for app.
	StartTrace(ctx context.Context, app string, categories []string, bufferKB int) error
	// StopTrace stops the asynchronous capture and flushes it to out on the device.
	StopTrace(ctx context.Context, out string) error
}

// DiagnosticError is returned when a command wrote to the error stream of the control channel.
type DiagnosticError struct {
	Command    string
	Diagnostic string
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%q reported: %s", e.Command, strings.TrimSpace(e.Diagnostic))
}

// Bridge is a Device backed by the adb binary.
type Bridge struct {
	path   string
	serial string
	// timeout bounds every individual call. Zero means no limit beyond the caller's context.
	timeout time.Duration
}

var _ Device = (*Bridge)(nil)

// New returns a Bridge to the device with the given serial using the adb binary at path.
func New(path, serial string, timeout time.Duration) *Bridge {
	if path == "" {
		path = "adb"
	}
	return &Bridge{path: path, serial: serial, timeout: timeout}
}

// Serial returns the adb serial number of the device.
func (b *Bridge) Serial() string {
	return b.serial
}

func (b *Bridge) run(ctx context.Context, args ...string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	full := append([]string{"-s", b.serial}, args...)
	out, stderr, err := historianutils.RunCommand(ctx, b.path, full...)
	if err != nil {
		return out, errors.Wrapf(err, "device %s", b.serial)
	}
	if strings.TrimSpace(stderr) != "" {
		return out, &DiagnosticError{Command: strings.Join(args, " "), Diagnostic: stderr}
	}
	return out, nil
}

// Shell runs cmd through the device shell.
func (b *Bridge) Shell(ctx context.Context, cmd string) (string, error) {
	return b.run(ctx, "shell", cmd)
}

// Pull copies remote to local.
func (b *Bridge) Pull(ctx context.Context, remote, local string) error {
	_, err := b.run(ctx, "pull", remote, local)
	return err
}

// ResetCounters clears the battery statistics kept by the device.
func (b *Bridge) ResetCounters(ctx context.Context) error {
	_, err := b.Shell(ctx, "dumpsys batterystats --reset")
	return err
}

// StartTrace starts an asynchronous, compressed atrace capture for app.
// bufferKB is the ring buffer size per CPU.
func (b *Bridge) StartTrace(ctx context.Context, app string, categories []string, bufferKB int) error {
	cmd := fmt.Sprintf("atrace -z -b %d -a %s %s --async_start", bufferKB, Quote(app), strings.Join(categories, " "))
	_, err := b.Shell(ctx, cmd)
	return err
}

// StopTrace stops the asynchronous capture and writes it to out on the device.
func (b *Bridge) StopTrace(ctx context.Context, out string) error {
	_, err := b.Shell(ctx, "atrace -z --async_stop -o "+Quote(out))
	return err
}

// Quote quotes s for the device shell.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("._-/:=@%+,", r))
	}) < 0 {
		return s
	}
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}

func shellInt(ctx context.Context, d Device, cmd string) (int, error) {
	out, err := d.Shell(ctx, cmd)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected output of %q", cmd)
	}
	return n, nil
}

// APILevel returns the platform SDK version of the device.
func APILevel(ctx context.Context, d Device) (int, error) {
	return shellInt(ctx, d, "getprop ro.build.version.sdk")
}

// CoreCount returns the number of logical CPU cores listed in /proc/cpuinfo.
func CoreCount(ctx context.Context, d Device) (int, error) {
	return shellInt(ctx, d, "cat /proc/cpuinfo | grep processor | wc -l")
}

// LaunchActivity starts the given activity with an intent carrying action and data URI.
func LaunchActivity(ctx context.Context, d Device, pkg, activity, action, uri string) error {
	cmd := fmt.Sprintf("am start -n %s/%s", Quote(pkg), Quote(activity))
	if action != "" {
		cmd += " -a " + Quote(action)
	}
	if uri != "" {
		cmd += " -d " + Quote(uri)
	}
	out, err := d.Shell(ctx, cmd)
	if err != nil {
		return err
	}
	if strings.Contains(out, "Error:") {
		return errors.Errorf("failed to start %s/%s: %s", pkg, activity, strings.TrimSpace(out))
	}
	return nil
}

// LaunchApp starts the launcher activity of pkg.
func LaunchApp(ctx context.Context, d Device, pkg string) error {
	out, err := d.Shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1 2>&1", Quote(pkg)))
	if err != nil {
		return err
	}
	if strings.Contains(out, "No activities found") || strings.Contains(out, "monkey aborted") {
		return errors.Errorf("failed to launch %s: %s", pkg, strings.TrimSpace(out))
	}
	return nil
}
