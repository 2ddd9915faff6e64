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
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
)

// decimalContext is used for every sum and quotient, so means of repeated identical runs are exact.
var decimalContext = apd.BaseContext.WithPrecision(34)

// parseDecimal parses a finite decimal value.
func parseDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid number %q", s)
	}
	if d.Form != apd.Finite {
		return nil, errors.Errorf("invalid number %q", s)
	}
	return d, nil
}

// formatDecimal formats d without trailing zeros or exponent.
func formatDecimal(d *apd.Decimal) string {
	var r apd.Decimal
	r.Reduce(d)
	return r.Text('f')
}

// accumulator sums a fixed set of numeric fields over successive rows.
// The field set is fixed when the accumulator is created, and rows with other fields are rejected.
type accumulator struct {
	fields []string
	sums   map[string]*apd.Decimal
	count  int64
}

func newAccumulator(fields []string) *accumulator {
	a := &accumulator{fields: fields, sums: make(map[string]*apd.Decimal)}
	for _, f := range fields {
		a.sums[f] = new(apd.Decimal)
	}
	return a
}

// add folds one row into the sums. The row must hold exactly the accumulator fields;
// a rejected row leaves the sums untouched.
func (a *accumulator) add(row map[string]*apd.Decimal) error {
	if len(row) != len(a.fields) {
		return fmt.Errorf("row has %d numeric fields, want %d", len(row), len(a.fields))
	}
	for k := range row {
		if _, ok := a.sums[k]; !ok {
			return fmt.Errorf("unexpected field %q", k)
		}
	}
	sums := make(map[string]*apd.Decimal, len(a.fields))
	for _, f := range a.fields {
		sum := new(apd.Decimal)
		if _, err := decimalContext.Add(sum, a.sums[f], row[f]); err != nil {
			return errors.Wrapf(err, "cannot add field %q", f)
		}
		sums[f] = sum
	}
	a.sums = sums
	a.count++
	return nil
}

// mean returns the per-row average of every field.
func (a *accumulator) mean() (map[string]*apd.Decimal, error) {
	if a.count == 0 {
		return nil, errors.New("no rows to average")
	}
	n := apd.New(a.count, 0)
	means := make(map[string]*apd.Decimal, len(a.fields))
	for _, f := range a.fields {
		m := new(apd.Decimal)
		if _, err := decimalContext.Quo(m, a.sums[f], n); err != nil {
			return nil, errors.Wrapf(err, "cannot average field %q", f)
		}
		means[f] = m
	}
	return means, nil
}
