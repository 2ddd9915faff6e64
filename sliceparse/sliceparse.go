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

// Package sliceparse contains routines to parse components of string slices
// into string, int and float64 variables.
package sliceparse

import (
	"fmt"
	"strconv"
	"strings"
)

// Consume parses len(output) elements of input into their respective output
// variables.  Each output must be a pointer to a supported type.  What is
// stored to the output depends on its type:
//
//	*string: strings.TrimSpace(input[i]) is copied
//	*int: strconv.Atoi is called
//	*float64: strconv.ParseFloat(input[i], 64) is called
//
// If an output element is a nil interface{}, the associated input element is
// skipped.
//
// If len(output) > len(input), or any output has an unsupported type, or a
// numeric element cannot be parsed, an error naming the element is returned.
//
// Otherwise, this function returns (input[len(output):], nil).
func Consume(input []string, output ...interface{}) (remaining []string, err error) {
	if len(input) < len(output) {
		return nil, fmt.Errorf("input of size %d for %d outputs", len(input), len(output))
	}
	for i, outI := range output {
		if outI == nil {
			continue
		}
		in := strings.TrimSpace(input[i])
		switch out := outI.(type) {
		case *string:
			*out = in
		case *int:
			n, err := strconv.Atoi(in)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			*out = n
		case *float64:
			n, err := strconv.ParseFloat(in, 64)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			*out = n
		default:
			return nil, fmt.Errorf("unsupported output type: %T", out)
		}
	}
	return input[len(output):], nil
}
