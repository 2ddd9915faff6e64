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

// Package aggregate folds per-run energy result files into per-subject averages, and those
// into a report covering every device and subject of a data directory.
package aggregate

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/pieterhop/android-runner/csv"
)

const (
	// Namespace prefixes every aggregated field name.
	Namespace = "batterystats_"

	// AggregatedFile is the name of the subject level aggregate file.
	AggregatedFile = "Aggregated.csv"

	// ArtifactDir is the directory holding the run files of a subject.
	ArtifactDir = "batterystats"
)

// excludedFields are bookkeeping fields that are never averaged.
var excludedFields = map[string]bool{
	csv.ComponentField: true,
	"count":            true,
	"datetime":         true,
}

// ErrNoRuns is returned when a subject directory holds no valid run file to average.
var ErrNoRuns = errors.New("no valid runs found")

// IOError is returned when a file or directory exists but cannot be read or parsed.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

// Cause returns the underlying error.
func (e *IOError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error { return e.Err }

// Skip records an input that was excluded from an aggregate, and why.
type Skip struct {
	Path   string
	Reason string
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s", s.Path, s.Reason)
}

// SubjectResult is the outcome of folding the run files of one subject.
type SubjectResult struct {
	// Row holds the namespaced averages sorted by field name. It is empty if no run was valid.
	Row *csv.Record
	// Runs is the number of run files averaged.
	Runs  int
	Skips []Skip
}

// Aggregator folds result files. The zero value is not usable; use New.
type Aggregator struct {
	log hclog.Logger
}

// New returns an Aggregator logging to log. A nil log discards messages.
func New(log hclog.Logger) *Aggregator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Aggregator{log: log}
}

// isRunFile reports whether name is a run file of the requested kind.
func isRunFile(name string, joules bool) bool {
	if name == AggregatedFile || !strings.HasSuffix(name, ".csv") {
		return false
	}
	if joules {
		return strings.Contains(name, "Joule")
	}
	return strings.HasPrefix(name, "results_")
}

// numericFields returns the header fields that are averaged.
func numericFields(header []string) []string {
	var fields []string
	for _, f := range header {
		if !excludedFields[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// runMean averages every row of one run file. Any unparsable row discards the whole file.
func runMean(path string) (map[string]*apd.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, recs, err := csv.ReadRecords(f)
	if err != nil {
		return nil, err
	}
	fields := numericFields(header)
	acc := newAccumulator(fields)
	for i, rec := range recs {
		row := make(map[string]*apd.Decimal, len(fields))
		for _, k := range fields {
			v, _ := rec.Get(k)
			d, err := parseDecimal(strings.TrimSpace(v))
			if err != nil {
				return nil, errors.Wrapf(err, "row %d field %q", i+1, k)
			}
			row[k] = d
		}
		if err := acc.add(row); err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
	}
	if acc.count == 0 {
		return nil, errors.New("file has no rows")
	}
	return acc.mean()
}

func sameFields(fields []string, row map[string]*apd.Decimal) bool {
	if len(fields) != len(row) {
		return false
	}
	for _, f := range fields {
		if _, ok := row[f]; !ok {
			return false
		}
	}
	return true
}

// Subject averages the run files in dir. With joules set the energy summary files are folded,
// otherwise the detailed per-component result files are.
// Each file is averaged over its rows first, and the subject figure is the mean of the file averages.
// Files that cannot be read or parsed are skipped and reported in the result.
// ErrNoRuns is returned, along with the skips, if no file could be averaged.
func (a *Aggregator) Subject(dir string, joules bool) (*SubjectResult, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Path: dir, Err: err}
	}

	res := &SubjectResult{Row: csv.NewRecord()}
	var (
		fields []string
		acc    *accumulator
	)
	for _, info := range infos {
		if !info.Mode().IsRegular() || !isRunFile(info.Name(), joules) {
			continue
		}
		path := filepath.Join(dir, info.Name())
		mean, err := runMean(path)
		if err != nil {
			res.skip(a.log, path, err.Error())
			continue
		}
		if acc == nil {
			for k := range mean {
				fields = append(fields, k)
			}
			sort.Strings(fields)
			acc = newAccumulator(fields)
		}
		if !sameFields(fields, mean) {
			res.skip(a.log, path, fmt.Sprintf("fields differ from the other runs %v", fields))
			continue
		}
		if err := acc.add(mean); err != nil {
			res.skip(a.log, path, err.Error())
			continue
		}
		res.Runs++
	}

	if acc == nil || acc.count == 0 {
		return res, ErrNoRuns
	}
	means, err := acc.mean()
	if err != nil {
		return res, err
	}
	for _, f := range fields {
		res.Row.Set(Namespace+f, formatDecimal(means[f]))
	}
	return res, nil
}

func (r *SubjectResult) skip(log hclog.Logger, path, reason string) {
	r.Skips = append(r.Skips, Skip{Path: path, Reason: reason})
	log.Warn("excluding run file", "file", path, "reason", reason)
}

// WriteSubject folds the energy summary and the detailed result files of dir into a single
// row written to dir/Aggregated.csv. Run files are never modified.
// ErrNoRuns is returned, and nothing is written, if neither fold found a valid run.
func (a *Aggregator) WriteSubject(dir string) (*SubjectResult, error) {
	combined := &SubjectResult{Row: csv.NewRecord()}
	var merged []*csv.Record
	for _, joules := range []bool{true, false} {
		res, err := a.Subject(dir, joules)
		if res != nil {
			combined.Skips = append(combined.Skips, res.Skips...)
		}
		if err == ErrNoRuns {
			a.log.Debug("no runs to fold", "dir", dir, "joules", joules)
			continue
		}
		if err != nil {
			return combined, err
		}
		if res.Runs > combined.Runs {
			combined.Runs = res.Runs
		}
		merged = append(merged, res.Row)
	}
	if len(merged) == 0 {
		a.log.Warn("subject has no valid runs", "dir", dir, "skipped", len(combined.Skips))
		return combined, ErrNoRuns
	}

	var keys []string
	values := make(map[string]string)
	for _, rec := range merged {
		for _, k := range rec.Keys() {
			if _, ok := values[k]; !ok {
				keys = append(keys, k)
			}
			values[k], _ = rec.Get(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		combined.Row.Set(k, values[k])
	}

	path := filepath.Join(dir, AggregatedFile)
	f, err := os.Create(path)
	if err != nil {
		return combined, err
	}
	if err := csv.WriteRecords(f, []*csv.Record{combined.Row}); err != nil {
		f.Close()
		return combined, err
	}
	if err := f.Close(); err != nil {
		return combined, err
	}
	a.log.Info("subject aggregated", "file", path, "runs", combined.Runs)
	return combined, nil
}
