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

// Package csv contains functions to write per-run energy results and to read and write the
// ordered rows used by the aggregation reports.
package csv

import (
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/pieterhop/android-runner/sliceparse"
)

const (
	// ResultHeader is outputted as the first line in per-run result files.
	ResultHeader = "Start Time (Seconds),End Time (Seconds),Duration (Seconds),Component,Energy Consumption (Joule)"

	// JouleHeader is the only column of the per-run energy summary file.
	JouleHeader = "Joule_calculated"

	// JoulePrefix is prepended to a result file name to name its energy summary file.
	JoulePrefix = "Joule_"

	// ComponentField is the non numeric column of per-run result files.
	ComponentField = "Component"
)

// ComponentRow is the energy attributed to one component over a time interval.
type ComponentRow struct {
	Start     float64
	End       float64
	Duration  float64
	Component string
	Energy    float64
}

// FormatFloat formats v in the shortest form that parses back to v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r ComponentRow) fields() []string {
	return []string{FormatFloat(r.Start), FormatFloat(r.End), FormatFloat(r.Duration), r.Component, FormatFloat(r.Energy)}
}

// ParseComponentRow parses the fields of one result line.
func ParseComponentRow(fields []string) (ComponentRow, error) {
	var r ComponentRow
	rest, err := sliceparse.Consume(fields, &r.Start, &r.End, &r.Duration, &r.Component, &r.Energy)
	if err != nil {
		return ComponentRow{}, errors.Wrapf(err, "malformed component row %q", fields)
	}
	if len(rest) > 0 {
		return ComponentRow{}, fmt.Errorf("component row %q has %d unexpected fields", fields, len(rest))
	}
	return r, nil
}

// ReadComponentRows parses result lines without a header, as printed by the component parser.
func ReadComponentRows(r io.Reader) ([]ComponentRow, error) {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = -1
	lines, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read component rows")
	}
	var rows []ComponentRow
	for _, l := range lines {
		if len(l) == 1 && l[0] == "" {
			continue
		}
		row, err := ParseComponentRow(l)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteResults writes the result header followed by every given group of rows.
func WriteResults(w io.Writer, groups ...[]ComponentRow) error {
	if _, err := fmt.Fprintln(w, ResultHeader); err != nil {
		return err
	}
	cw := stdcsv.NewWriter(w)
	for _, rows := range groups {
		for _, r := range rows {
			if err := cw.Write(r.fields()); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJoules writes the energy summary file contents.
func WriteJoules(w io.Writer, joules float64) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n", JouleHeader, FormatFloat(joules))
	return err
}

// Record is a CSV row whose fields keep their insertion order.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// Set sets the value of a field, appending the field if it is new.
func (r *Record) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value of a field and whether it is present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the fields in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Merge sets every field of o on r, in o's order.
func (r *Record) Merge(o *Record) {
	for _, k := range o.keys {
		r.Set(k, o.values[k])
	}
}

// ReadRecords reads a CSV file with a header line. Every line must have as many fields as the header.
func ReadRecords(r io.Reader) ([]string, []*Record, error) {
	cr := stdcsv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errors.New("missing header")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}
	var recs []*Record
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read row %d", len(recs)+1)
		}
		rec := NewRecord()
		for i, k := range header {
			rec.Set(k, line[i])
		}
		recs = append(recs, rec)
	}
	return header, recs, nil
}

// WriteRecords writes recs with a header holding the union of their fields in first seen order.
// Missing fields are written as empty values. Nothing is written for an empty slice.
func WriteRecords(w io.Writer, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	var header []string
	seen := make(map[string]bool)
	for _, rec := range recs {
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	cw := stdcsv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range recs {
		line := make([]string, len(header))
		for i, k := range header {
			line[i] = rec.values[k]
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
