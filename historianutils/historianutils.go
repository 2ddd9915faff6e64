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

// Package historianutils is a library of common utility functions shared by the capture and aggregation tools.
package historianutils

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// nonSlugRE matches runs of characters that are not safe in a directory name.
var nonSlugRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SubexpNames returns a mapping of the sub-expression names to values if the Regexp
// successfully matches the string, otherwise, it returns false.
func SubexpNames(r *regexp.Regexp, s string) (bool, map[string]string) {
	if matches := r.FindStringSubmatch(strings.TrimSpace(s)); matches != nil {
		names := r.SubexpNames()
		result := make(map[string]string)
		for i, match := range matches {
			result[names[i]] = strings.TrimSpace(match)
		}
		return true, result
	}
	return false, nil
}

// ErrorsToString converts an array of errors into a newline delimited string.
func ErrorsToString(errs []error) string {
	var errorB bytes.Buffer
	for _, e := range errs {
		fmt.Fprintln(&errorB, e.Error())
	}
	return errorB.String()
}

// Slug converts an arbitrary identifier (eg. a URL) into a string usable as a single path element.
//
//	https://example.com/a?b=1 -> https-example.com-a-b-1
func Slug(s string) string {
	return strings.Trim(nonSlugRE.ReplaceAllString(s, "-"), "-")
}

// RunCommand executes the given command and returns its stdout and stderr separately.
// A non-nil error is only returned if the command could not be run or exited with a non-zero status;
// callers decide themselves whether output on stderr is a failure.
func RunCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c := name
		if len(args) > 0 {
			c += " " + strings.Join(args, " ")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return stdout.String(), stderr.String(), fmt.Errorf("failed to run command %q:\n  %v\n  %s", c, err, stderr.String())
	}

	return stdout.String(), stderr.String(), nil
}
