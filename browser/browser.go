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

// Package browser lists the browsers web subjects can be profiled in.
package browser

import (
	"context"
	"fmt"
	"sort"

	"github.com/pieterhop/android-runner/adb"
)

const viewAction = "android.intent.action.VIEW"

// Browser is an installed browser app that can open a URL.
type Browser interface {
	// Name is the identifier used in configuration files and result directories.
	Name() string
	PackageName() string
	MainActivity() string
	// Launch opens uri in the browser on the device.
	Launch(ctx context.Context, d adb.Device, uri string) error
}

type app struct {
	name, pkg, activity string
}

func (a app) Name() string         { return a.name }
func (a app) PackageName() string  { return a.pkg }
func (a app) MainActivity() string { return a.activity }

func (a app) Launch(ctx context.Context, d adb.Device, uri string) error {
	return adb.LaunchActivity(ctx, d, a.pkg, a.activity, viewAction, uri)
}

var (
	Chrome  Browser = app{"chrome", "com.android.chrome", "com.google.android.apps.chrome.Main"}
	Firefox Browser = app{"firefox", "org.mozilla.firefox", "org.mozilla.gecko.BrowserApp"}
	Opera   Browser = app{"opera", "com.opera.browser", "com.opera.Opera"}
	Samsung Browser = app{"samsung", "com.sec.android.app.sbrowser", "com.sec.android.app.sbrowser.SBrowserMainActivity"}
)

var known = map[string]Browser{
	Chrome.Name():  Chrome,
	Firefox.Name(): Firefox,
	Opera.Name():   Opera,
	Samsung.Name(): Samsung,
}

// Lookup returns the browser with the given name.
func Lookup(name string) (Browser, error) {
	b, ok := known[name]
	if !ok {
		return nil, fmt.Errorf("no browser found for %q, supported: %v", name, Names())
	}
	return b, nil
}

// Names returns the supported browser names in sorted order.
func Names() []string {
	var names []string
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
