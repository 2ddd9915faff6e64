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

// Package componentparser attributes captured battery history and kernel traces to device
// components by delegating to an external power model.
package componentparser

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pieterhop/android-runner/csv"
	"github.com/pieterhop/android-runner/historianutils"
)

// Parser turns captured artifacts into per-component energy rows.
type Parser interface {
	ParseBatteryHistory(ctx context.Context, app, historyPath, powerProfilePath string) ([]csv.ComponentRow, error)
	ParseTrace(ctx context.Context, app, tracePath, logcatPath, historyPath, powerProfilePath string, cores, apiLevel int) ([]csv.ComponentRow, error)
}

// Exec is a Parser running an external command. The command is invoked as
//
//	<Command...> batterystats <app> <history> <power profile>
//	<Command...> systrace <app> <trace> <logcat> <history> <power profile> <cores> <api level>
//
// and must print one component row per line, without a header, on stdout.
type Exec struct {
	Command []string
}

var _ Parser = Exec{}

func (e Exec) run(ctx context.Context, args ...string) ([]csv.ComponentRow, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("no component parser command configured")
	}
	full := append(append([]string(nil), e.Command[1:]...), args...)
	out, _, err := historianutils.RunCommand(ctx, e.Command[0], full...)
	if err != nil {
		return nil, errors.Wrapf(err, "component parser failed for %s", args[0])
	}
	rows, err := csv.ReadComponentRows(strings.NewReader(out))
	if err != nil {
		return nil, errors.Wrapf(err, "component parser returned malformed %s output", args[0])
	}
	return rows, nil
}

// ParseBatteryHistory attributes the battery history dump to components.
func (e Exec) ParseBatteryHistory(ctx context.Context, app, historyPath, powerProfilePath string) ([]csv.ComponentRow, error) {
	return e.run(ctx, "batterystats", app, historyPath, powerProfilePath)
}

// ParseTrace attributes the decoded kernel trace to components.
func (e Exec) ParseTrace(ctx context.Context, app, tracePath, logcatPath, historyPath, powerProfilePath string, cores, apiLevel int) ([]csv.ComponentRow, error) {
	return e.run(ctx, "systrace", app, tracePath, logcatPath, historyPath, powerProfilePath, strconv.Itoa(cores), strconv.Itoa(apiLevel))
}
