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

// Package batterystats extracts the consumed energy from dumpsys batterystats counter output.
package batterystats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pieterhop/android-runner/historianutils"
)

const (
	// DrainMarker identifies the line holding the computed charge drain.
	DrainMarker = "Computed drain:"
	// VoltMarker identifies a line holding a battery voltage reading.
	VoltMarker = "volt="
)

var (
	// chargeRE matches the computed drain, in mAh, printed in the power use summary,
	// e.g. "Capacity: 3450, Computed drain: 1234.5, actual drain: 1000-1200".
	chargeRE = regexp.MustCompile(`Computed drain:\s*(?P<charge>\d*\.?\d+(?:[eE][-+]?\d+)?)`)

	// voltRE matches the battery voltage, in mV, printed in battery history entries,
	// e.g. "0 (2) 100 status=discharging health=good plug=none temp=250 volt=3700".
	voltRE = regexp.MustCompile(`volt=(?P<volt>\d*\.?\d+)`)
)

// ParseError is returned when a counter line does not hold the expected value.
type ParseError struct {
	Field string
	Line  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not parse %s from %q: %v", e.Field, e.Line, e.Err)
	}
	return fmt.Sprintf("could not find %s in %q", e.Field, e.Line)
}

// Joules converts a charge in mAh at the given voltage in mV into joules.
func Joules(charge, volt float64) float64 {
	wh := charge * volt / 1000000.0
	return wh * 3600.0
}

func parseValue(re *regexp.Regexp, field, line string) (float64, error) {
	matches, result := historianutils.SubexpNames(re, line)
	if !matches {
		return 0, &ParseError{Field: field, Line: line}
	}
	v, err := strconv.ParseFloat(result[field], 64)
	if err != nil {
		return 0, &ParseError{Field: field, Line: line, Err: err}
	}
	return v, nil
}

// ParseCharge returns the computed drain in mAh from the given line.
func ParseCharge(line string) (float64, error) {
	return parseValue(chargeRE, "charge", line)
}

// ParseVoltage returns the first voltage reading in mV from the given line.
func ParseVoltage(line string) (float64, error) {
	return parseValue(voltRE, "volt", line)
}

// ConsumedJoules estimates the energy consumed during a session from the drain and voltage lines.
func ConsumedJoules(drainLine, voltLine string) (float64, error) {
	charge, err := ParseCharge(drainLine)
	if err != nil {
		return 0, err
	}
	volt, err := ParseVoltage(voltLine)
	if err != nil {
		return 0, err
	}
	return Joules(charge, volt), nil
}

// FindLine returns the first line of dump containing marker, or an empty string.
func FindLine(dump, marker string) string {
	for _, l := range strings.Split(dump, "\n") {
		if strings.Contains(l, marker) {
			return strings.TrimSpace(l)
		}
	}
	return ""
}

// ConsumedJoulesFromDump is ConsumedJoules applied to the first drain and voltage lines of a full dump.
func ConsumedJoulesFromDump(dump string) (float64, error) {
	return ConsumedJoules(FindLine(dump, DrainMarker), FindLine(dump, VoltMarker))
}
