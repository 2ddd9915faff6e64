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

package adb

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeADB writes a shell script standing in for the adb binary. It logs its arguments,
// answers a few known shell commands and writes to stderr for any command mentioning "fail".
func fakeADB(t *testing.T) (path, logPath string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "adb")
	logPath = filepath.Join(dir, "calls.log")
	script := `#!/bin/sh
shift 2
echo "$*" >> '` + logPath + `'
case "$*" in
  *fail*) echo "error: something went wrong" >&2 ;;
  *hang*) exec sleep 5 ;;
  "shell getprop ro.build.version.sdk") echo 30 ;;
  "shell cat /proc/cpuinfo | grep processor | wc -l") echo " 8" ;;
  "shell am start"*) echo "Starting: Intent" ;;
esac
`
	if err := ioutil.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake adb: %v", err)
	}
	return path, logPath
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()
	b, err := ioutil.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read call log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestBridgeCommands(t *testing.T) {
	path, logPath := fakeADB(t)
	ctx := context.Background()
	b := New(path, "emulator-5554", time.Minute)

	if err := b.ResetCounters(ctx); err != nil {
		t.Fatalf("ResetCounters() unexpected error: %v", err)
	}
	if err := b.StartTrace(ctx, "com.example.app", []string{"freq", "idle"}, 10240); err != nil {
		t.Fatalf("StartTrace() unexpected error: %v", err)
	}
	if err := b.StopTrace(ctx, "/storage/self/primary/tmp/atrace.out"); err != nil {
		t.Fatalf("StopTrace() unexpected error: %v", err)
	}
	if err := b.Pull(ctx, "/sdcard/logcat.txt", "/tmp/logcat.txt"); err != nil {
		t.Fatalf("Pull() unexpected error: %v", err)
	}
	want := []string{
		"shell dumpsys batterystats --reset",
		"shell atrace -z -b 10240 -a com.example.app freq idle --async_start",
		"shell atrace -z --async_stop -o /storage/self/primary/tmp/atrace.out",
		"pull /sdcard/logcat.txt /tmp/logcat.txt",
	}
	if diff := cmp.Diff(want, readCalls(t, logPath)); diff != "" {
		t.Errorf("adb calls mismatch (-want +got):\n%s", diff)
	}
}

func TestBridgeDiagnostic(t *testing.T) {
	path, _ := fakeADB(t)
	_, err := New(path, "serial", 0).Shell(context.Background(), "fail now")
	derr, ok := err.(*DiagnosticError)
	if !ok {
		t.Fatalf("Shell() got error %v (%T), want *DiagnosticError", err, err)
	}
	if derr.Command != "shell fail now" {
		t.Errorf("DiagnosticError.Command = %q, want %q", derr.Command, "shell fail now")
	}
}

func TestBridgeTimeout(t *testing.T) {
	path, _ := fakeADB(t)
	start := time.Now()
	if _, err := New(path, "serial", 100*time.Millisecond).Shell(context.Background(), "hang"); err == nil {
		t.Fatal("Shell() returned nil error for a call exceeding the timeout")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Shell() returned after %v, want the call to be cut short", elapsed)
	}
}

func TestDeviceFacts(t *testing.T) {
	path, _ := fakeADB(t)
	ctx := context.Background()
	b := New(path, "serial", time.Minute)

	api, err := APILevel(ctx, b)
	if err != nil || api != 30 {
		t.Errorf("APILevel() = %d, %v, want 30, nil", api, err)
	}
	cores, err := CoreCount(ctx, b)
	if err != nil || cores != 8 {
		t.Errorf("CoreCount() = %d, %v, want 8, nil", cores, err)
	}
	if err := LaunchActivity(ctx, b, "com.android.chrome", "com.google.android.apps.chrome.Main", "android.intent.action.VIEW", "https://example.com/?a=1&b=2"); err != nil {
		t.Errorf("LaunchActivity() unexpected error: %v", err)
	}
}

func TestQuote(t *testing.T) {
	test := map[string]string{
		"com.android.chrome":   "com.android.chrome",
		"":                     "''",
		"https://x.org/?a=1&b": `'https://x.org/?a=1&b'`,
		"it's":                 `'it'"'"'s'`,
	}
	for in, want := range test {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %q, want %q", in, got, want)
		}
	}
}
