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

package kernel

import (
	"bytes"
	"compress/zlib"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleTrace = "# tracer: nop\n" +
	"#\n" +
	"          <idle>-0     [001] d..2  1234.000001: cpu_idle: state=1 cpu_id=1\n" +
	"     kworker/0:1-42    [000] d..3  1234.000123: cpu_frequency: state=1497600 cpu_id=0\n"

func compress(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

// Tests the decoding of plain text atrace captures.
func TestDecodePlain(t *testing.T) {
	tests := []struct {
		desc  string
		input string
		want  string
	}{
		{
			"Tracer header announced before the sentinel, status line and CRLF stripped",
			"\r\n# tracer foo\nTRACE:\r\ncapturing trace... done\r\nA B C\r\n",
			"A B C\n",
		},
		{
			"Payload with tracer header and CRLF line endings",
			"capturing trace... done\r\nTRACE:\r\n" + strings.Replace(sampleTrace, "\n", "\r\n", -1),
			sampleTrace,
		},
		{
			"Windows adb doubles the carriage return",
			"TRACE:\r\r\n" + strings.Replace(sampleTrace, "\n", "\r\r\n", -1),
			sampleTrace,
		},
		{
			"Unix line endings",
			"TRACE:\n" + sampleTrace,
			sampleTrace,
		},
		{
			"Trailing status line without a newline",
			"TRACE:\n" + sampleTrace + "capturing trace... done",
			sampleTrace,
		},
		{
			"Stray carriage returns are removed",
			"TRACE:\n# tracer: nop\rA\r\n",
			"# tracer: nopA\n",
		},
	}
	for _, test := range tests {
		got, err := Decode([]byte(test.input))
		if err != nil {
			t.Errorf("%v: Decode() unexpected error: %v", test.desc, err)
			continue
		}
		if diff := cmp.Diff(test.want, string(got)); diff != "" {
			t.Errorf("%v: Decode() mismatch (-want +got):\n%s", test.desc, diff)
		}
	}
}

func TestDecodeCompressed(t *testing.T) {
	raw := append([]byte("capturing trace...\nTRACE:\n"), compress(t, []byte("\n\n"+sampleTrace))...)
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if diff := cmp.Diff(sampleTrace, string(got)); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCompressedAfterTracerPreamble(t *testing.T) {
	raw := append([]byte("# tracer: nop\nTRACE:\n"), compress(t, []byte(sampleTrace))...)
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if diff := cmp.Diff(sampleTrace, string(got)); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressionIsTransparent(t *testing.T) {
	plain, err := Decode([]byte("TRACE:\n" + sampleTrace))
	if err != nil {
		t.Fatalf("Decode(plain) unexpected error: %v", err)
	}
	compressed, err := Decode(append([]byte("TRACE:\n"), compress(t, []byte(sampleTrace))...))
	if err != nil {
		t.Fatalf("Decode(compressed) unexpected error: %v", err)
	}
	if !bytes.Equal(plain, compressed) {
		t.Errorf("Decode(compressed) = %q, want %q", compressed, plain)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	raw := append([]byte("TRACE:\n"), compress(t, []byte(sampleTrace))...)
	first, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	second, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("Decode() not deterministic: %q != %q", first, second)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte("capturing trace... done\n# tracer: nop\n")); err != ErrMissingTraceHeader {
		t.Errorf("Decode() without sentinel got error %v, want %v", err, ErrMissingTraceHeader)
	}

	binary := []byte{0xff, 0xfe, 0, 0x80, 0x81}
	tests := []struct {
		desc    string
		input   []byte
		wantErr error
	}{
		{
			desc:  "Garbage payload",
			input: []byte("TRACE:\nthis is not compressed"),
		},
		{
			desc:  "Binary payload after a tracer preamble",
			input: append([]byte("# tracer: nop\nTRACE:\n"), binary...),
		},
		{
			desc:    "Compressed payload inflating to binary",
			input:   append([]byte("TRACE:\n"), compress(t, binary)...),
			wantErr: ErrNotText,
		},
	}
	for _, test := range tests {
		got, err := Decode(test.input)
		de, ok := err.(*DecodeError)
		if !ok {
			t.Errorf("%v: Decode() = %q, %v (%T), want *DecodeError", test.desc, got, err, err)
			continue
		}
		if test.wantErr != nil && de.Err != test.wantErr {
			t.Errorf("%v: Decode() error cause = %v, want %v", test.desc, de.Err, test.wantErr)
		}
	}
}

func TestIsTrace(t *testing.T) {
	if !IsTrace([]byte(sampleTrace)) {
		t.Errorf("IsTrace(%q) = false, want true", sampleTrace)
	}
	if IsTrace([]byte("\x78\x9c")) {
		t.Error("IsTrace(zlib header) = true, want false")
	}
}
