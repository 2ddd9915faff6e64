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

package aggregate

import (
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pieterhop/android-runner/csv"
)

// Identifying fields of a final report row.
const (
	DeviceField  = "device"
	SubjectField = "subject"
	BrowserField = "browser"
)

// Layout describes how the results of a subject are stored.
type Layout int

const (
	// Direct subjects hold an artifact directory themselves.
	Direct Layout = iota
	// Browsers subjects hold one directory per browser, each with an artifact directory.
	Browsers
	// NoData subjects hold neither.
	NoData
)

func (l Layout) String() string {
	switch l {
	case Direct:
		return "direct"
	case Browsers:
		return "browsers"
	case NoData:
		return "no data"
	}
	return "unknown layout " + strconv.Itoa(int(l))
}

// Report is the cross-device, cross-subject fold of a data directory.
type Report struct {
	Rows  []*csv.Record
	Skips []Skip
	// NoData lists the subject directories that held no results at all.
	NoData []string
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// subdirs returns the names of the directories in dir, sorted by name.
func subdirs(dir string) ([]string, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Path: dir, Err: err}
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// LayoutOf returns the layout of a subject directory.
func LayoutOf(subjectDir string) (Layout, error) {
	if isDir(filepath.Join(subjectDir, ArtifactDir)) {
		return Direct, nil
	}
	names, err := subdirs(subjectDir)
	if err != nil {
		return NoData, err
	}
	for _, n := range names {
		if isDir(filepath.Join(subjectDir, n, ArtifactDir)) {
			return Browsers, nil
		}
	}
	return NoData, nil
}

// readAggregated reads the subject level aggregate in artifactDir. When the file holds more
// than one row the later rows overwrite the earlier ones.
func readAggregated(artifactDir string) (*csv.Record, error) {
	path := filepath.Join(artifactDir, AggregatedFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()
	_, recs, err := csv.ReadRecords(f)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	if len(recs) == 0 {
		return nil, &IOError{Path: path, Err: errors.New("no rows")}
	}
	out := csv.NewRecord()
	for _, rec := range recs {
		out.Merge(rec)
	}
	return out, nil
}

// Final folds every subject level aggregate under root into one report, ordered by device,
// subject and browser name. A missing root gives an empty report. Unreadable aggregate files
// are skipped, but a directory that exists and cannot be listed fails the fold.
func (a *Aggregator) Final(root string) (*Report, error) {
	rep := &Report{}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		a.log.Warn("data directory does not exist", "root", root)
		return rep, nil
	}
	devices, err := subdirs(root)
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		before := len(rep.Rows)
		subjects, err := subdirs(filepath.Join(root, device))
		if err != nil {
			return nil, err
		}
		for _, subject := range subjects {
			if err := a.foldSubject(rep, filepath.Join(root, device, subject), device, subject); err != nil {
				return nil, err
			}
		}
		if len(rep.Rows) == before {
			a.log.Warn("device has no aggregated subjects", "device", device)
		}
	}
	return rep, nil
}

func (a *Aggregator) foldSubject(rep *Report, dir, device, subject string) error {
	layout, err := LayoutOf(dir)
	if err != nil {
		return err
	}
	switch layout {
	case Direct:
		a.emit(rep, filepath.Join(dir, ArtifactDir), device, subject, "")
	case Browsers:
		browsers, err := subdirs(dir)
		if err != nil {
			return err
		}
		for _, b := range browsers {
			artifacts := filepath.Join(dir, b, ArtifactDir)
			if !isDir(artifacts) {
				a.log.Debug("browser has no results", "device", device, "subject", subject, "browser", b)
				continue
			}
			a.emit(rep, artifacts, device, subject, b)
		}
	default:
		rep.NoData = append(rep.NoData, dir)
		a.log.Info("subject has no results", "device", device, "subject", subject)
	}
	return nil
}

func (a *Aggregator) emit(rep *Report, artifactDir, device, subject, browser string) {
	agg, err := readAggregated(artifactDir)
	if err != nil {
		path := filepath.Join(artifactDir, AggregatedFile)
		rep.Skips = append(rep.Skips, Skip{Path: path, Reason: err.Error()})
		a.log.Warn("excluding aggregate", "file", path, "error", err)
		return
	}
	row := csv.NewRecord()
	row.Set(DeviceField, device)
	row.Set(SubjectField, subject)
	if browser != "" {
		row.Set(BrowserField, browser)
	}
	row.Merge(agg)
	rep.Rows = append(rep.Rows, row)
}

// WriteFinal folds root and writes the report to the CSV file out.
func (a *Aggregator) WriteFinal(root, out string) (*Report, error) {
	rep, err := a.Final(root)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(out)
	if err != nil {
		return rep, err
	}
	if err := csv.WriteRecords(f, rep.Rows); err != nil {
		f.Close()
		return rep, err
	}
	if err := f.Close(); err != nil {
		return rep, err
	}
	a.log.Info("final report written", "file", out, "rows", len(rep.Rows), "skipped", len(rep.Skips), "no_data", len(rep.NoData))
	return rep, nil
}

// columns returns the union of the fields of rows in first seen order.
func columns(rows []*csv.Record) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func reportValue(s string) *structpb.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return structpb.NewNumberValue(f)
	}
	return structpb.NewStringValue(s)
}

// ReportProto converts rows into a Struct holding the ordered column names under "columns"
// and one Struct per row under "rows". Numeric fields become number values.
func ReportProto(rows []*csv.Record) *structpb.Struct {
	cols := &structpb.ListValue{}
	for _, c := range columns(rows) {
		cols.Values = append(cols.Values, structpb.NewStringValue(c))
	}
	list := &structpb.ListValue{}
	for _, r := range rows {
		s := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
		for _, k := range r.Keys() {
			v, _ := r.Get(k)
			s.Fields[k] = reportValue(v)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"columns": structpb.NewListValue(cols),
		"rows":    structpb.NewListValue(list),
	}}
}

// WriteProto writes rows to w as a deterministically marshalled ReportProto message.
func WriteProto(w io.Writer, rows []*csv.Record) error {
	b := proto.NewBuffer(nil)
	b.SetDeterministic(true)
	if err := b.Marshal(ReportProto(rows)); err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	_, err := w.Write(b.Bytes())
	return err
}
