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

package batterystats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumedJoules(t *testing.T) {
	got, err := ConsumedJoules(
		"    Capacity: 3450, Computed drain: 1234.5, actual drain: 1000-1200",
		"                0 (2) 100 status=discharging health=good plug=none temp=250 volt=3700 charge=3000",
	)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5*3700/1e6*3600, got, 1e-9)
	assert.InDelta(t, 16443.54, got, 1e-6)
}

func TestJoules(t *testing.T) {
	assert.Equal(t, 0.0, Joules(0, 3700))
	assert.Equal(t, 0.0, Joules(0, 4200))
	assert.Less(t, Joules(10, 3700), Joules(11, 3700))
	assert.Less(t, Joules(10, 3700), Joules(10, 3800))
}

func TestConsumedJoulesErrors(t *testing.T) {
	tests := []struct {
		desc      string
		drain     string
		volt      string
		wantField string
	}{
		{"Missing drain line", "", "volt=3700", "charge"},
		{"Drain is not numeric", "Computed drain: n/a, actual drain: 0", "volt=3700", "charge"},
		{"Negative drain is rejected", "Computed drain: -3, actual drain: 0", "volt=3700", "charge"},
		{"Missing voltage", "Computed drain: 12, actual drain: 0", "temp=250", "volt"},
		{"Voltage is not numeric", "Computed drain: 12, actual drain: 0", "volt=high", "volt"},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, err := ConsumedJoules(test.drain, test.volt)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, test.wantField, perr.Field)
		})
	}
}

func TestConsumedJoulesFromDump(t *testing.T) {
	dump := strings.Join([]string{
		"Battery History (1% used, 4KB used of 4096KB, 12 strings using 1KB):",
		"                    0 (9) RESET:TIME: 2026-10-19-10-00-00",
		"                    0 (2) 100 status=discharging health=good plug=none temp=250 volt=4000 charge=3000",
		"        +1s002ms (2) 100 volt=3990",
		"",
		"Estimated power use (mAh):",
		"    Capacity: 3450, Computed drain: 2.5, actual drain: 0",
	}, "\n")
	got, err := ConsumedJoulesFromDump(dump)
	require.NoError(t, err)
	assert.InDelta(t, Joules(2.5, 4000), got, 1e-9)
	assert.Equal(t, "Capacity: 3450, Computed drain: 2.5, actual drain: 0", FindLine(dump, DrainMarker))
	assert.Empty(t, FindLine(dump, "no such marker"))
}
