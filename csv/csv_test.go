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

package csv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	history := []ComponentRow{{0, 10.5, 10.5, "screen", 3.25}}
	trace := []ComponentRow{{1, 2, 1, "cpu0, core", 0.125}}
	if err := WriteResults(&buf, history, nil, trace); err != nil {
		t.Fatalf("WriteResults() unexpected error: %v", err)
	}
	want := strings.Join([]string{
		ResultHeader,
		"0,10.5,10.5,screen,3.25",
		`1,2,1,"cpu0, core",0.125`,
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteResults() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJoules(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJoules(&buf, 16443.54); err != nil {
		t.Fatalf("WriteJoules() unexpected error: %v", err)
	}
	if want := "Joule_calculated\n16443.54\n"; buf.String() != want {
		t.Errorf("WriteJoules() = %q, want %q", buf.String(), want)
	}
}

func TestReadComponentRows(t *testing.T) {
	tests := []struct {
		desc    string
		input   string
		want    []ComponentRow
		wantErr bool
	}{
		{
			desc:  "Multiple rows",
			input: "0,1,1,wifi,0.5\n1,3,2,\"cpu, little\",1.5\n",
			want: []ComponentRow{
				{0, 1, 1, "wifi", 0.5},
				{1, 3, 2, "cpu, little", 1.5},
			},
		},
		{
			desc:  "Empty output",
			input: "",
		},
		{
			desc:    "Non numeric energy",
			input:   "0,1,1,wifi,lots\n",
			wantErr: true,
		},
		{
			desc:    "Too many fields",
			input:   "0,1,1,wifi,0.5,extra\n",
			wantErr: true,
		},
	}
	for _, test := range tests {
		got, err := ReadComponentRows(strings.NewReader(test.input))
		if (err != nil) != test.wantErr {
			t.Errorf("%v: ReadComponentRows() error = %v, wantErr %v", test.desc, err, test.wantErr)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%v: ReadComponentRows() mismatch (-want +got):\n%s", test.desc, diff)
		}
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	input := "device,subject,batterystats_Joule_calculated\nnexus5,com.example,15\n"
	header, recs, err := ReadRecords(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRecords() unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"device", "subject", "batterystats_Joule_calculated"}, header); diff != "" {
		t.Errorf("ReadRecords() header mismatch (-want +got):\n%s", diff)
	}
	if len(recs) != 1 {
		t.Fatalf("ReadRecords() returned %d records, want 1", len(recs))
	}
	if v, _ := recs[0].Get("batterystats_Joule_calculated"); v != "15" {
		t.Errorf("Get() = %q, want 15", v)
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, recs); err != nil {
		t.Fatalf("WriteRecords() unexpected error: %v", err)
	}
	if buf.String() != input {
		t.Errorf("WriteRecords() = %q, want %q", buf.String(), input)
	}
}

func TestWriteRecordsUnionHeader(t *testing.T) {
	native := NewRecord()
	native.Set("device", "d1")
	native.Set("subject", "app")
	native.Set("batterystats_x", "1")
	web := NewRecord()
	web.Set("device", "d1")
	web.Set("subject", "site")
	web.Set("browser", "chrome")
	web.Set("batterystats_x", "2")

	var buf bytes.Buffer
	if err := WriteRecords(&buf, []*Record{native, web}); err != nil {
		t.Fatalf("WriteRecords() unexpected error: %v", err)
	}
	want := "device,subject,batterystats_x,browser\nd1,app,1,\nd1,site,2,chrome\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteRecords() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecordsErrors(t *testing.T) {
	tests := []struct {
		desc  string
		input string
	}{
		{"Empty file", ""},
		{"Row with missing field", "a,b\n1\n"},
	}
	for _, test := range tests {
		if _, _, err := ReadRecords(strings.NewReader(test.input)); err == nil {
			t.Errorf("%v: ReadRecords(%q) returned nil error", test.desc, test.input)
		}
	}
}

func TestRecordMergeKeepsOrder(t *testing.T) {
	a := NewRecord()
	a.Set("b", "1")
	a.Set("a", "2")
	b := NewRecord()
	b.Set("c", "3")
	b.Set("b", "4")
	a.Merge(b)
	if diff := cmp.Diff([]string{"b", "a", "c"}, a.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if v, _ := a.Get("b"); v != "4" {
		t.Errorf("Get(b) = %q, want 4", v)
	}
}
