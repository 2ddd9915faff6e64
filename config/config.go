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

// Package config loads the experiment description driving a profiling run.
package config

import (
	"bytes"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pieterhop/android-runner/browser"
)

// Experiment types.
const (
	Native = "native"
	Web    = "web"
)

// Defaults applied by Normalize.
const (
	DefaultADBPath     = "adb"
	DefaultTimeout     = 2 * time.Minute
	DefaultRepetitions = 1
	DefaultOutputDir   = "output"
)

// Config describes an experiment: which subjects to profile on which devices, and how.
type Config struct {
	Type     string   `yaml:"type"`
	Devices  []string `yaml:"devices"`
	Apps     []string `yaml:"apps"`
	Browsers []string `yaml:"browsers"`
	URLs     []string `yaml:"urls"`

	// Duration is the time, in milliseconds, each subject is exercised for.
	Duration     int    `yaml:"duration"`
	Repetitions  int    `yaml:"repetitions"`
	PowerProfile string `yaml:"powerprofile_path"`
	OutputDir    string `yaml:"output_dir"`
	Cleanup      bool   `yaml:"cleanup"`

	// SystraceParsing is a pointer so that an absent key can default to true.
	SystraceParsing *bool    `yaml:"enable_systrace_parsing"`
	ParserCommand   []string `yaml:"parser_command"`
	ADBPath         string   `yaml:"adb_path"`

	// CallTimeout bounds every adb call, as a duration string such as "90s".
	CallTimeout string `yaml:"call_timeout"`
}

// Parse decodes a YAML experiment description, normalizes it and validates it.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	c := &Config{}
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the experiment description at path.
func Load(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return c, nil
}

// Normalize fills in the defaults of unset fields.
func (c *Config) Normalize() {
	if c.ADBPath == "" {
		c.ADBPath = DefaultADBPath
	}
	if c.Repetitions == 0 {
		c.Repetitions = DefaultRepetitions
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.CallTimeout == "" {
		c.CallTimeout = DefaultTimeout.String()
	}
	if c.SystraceParsing == nil {
		on := true
		c.SystraceParsing = &on
	}
	if c.Type == Web && len(c.Browsers) == 0 {
		c.Browsers = []string{browser.Chrome.Name()}
	}
}

// Validate reports the first problem that would prevent the experiment from running.
func (c *Config) Validate() error {
	switch c.Type {
	case Native:
		if len(c.Apps) == 0 {
			return errors.New("native experiment lists no apps")
		}
	case Web:
		if len(c.URLs) == 0 {
			return errors.New("web experiment lists no urls")
		}
		if _, err := c.ResolveBrowsers(); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown experiment type %q, want %q or %q", c.Type, Native, Web)
	}
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}
	if c.PowerProfile == "" {
		return errors.New("powerprofile_path is required")
	}
	if len(c.ParserCommand) == 0 {
		return errors.New("parser_command is required")
	}
	if c.Duration < 0 {
		return errors.Errorf("negative duration %d", c.Duration)
	}
	if c.Repetitions < 0 {
		return errors.Errorf("negative repetitions %d", c.Repetitions)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// ResolveBrowsers returns the configured browsers.
func (c *Config) ResolveBrowsers() ([]browser.Browser, error) {
	var bs []browser.Browser
	for _, name := range c.Browsers {
		b, err := browser.Lookup(name)
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	return bs, nil
}

// Timeout returns the parsed adb call timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, errors.Wrap(err, "invalid call_timeout")
	}
	if d <= 0 {
		return 0, errors.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	return d, nil
}

// RunDuration returns the time each subject is exercised for.
func (c *Config) RunDuration() time.Duration {
	return time.Duration(c.Duration) * time.Millisecond
}

// Systrace reports whether captured traces are handed to the trace parser.
func (c *Config) Systrace() bool {
	return c.SystraceParsing == nil || *c.SystraceParsing
}
