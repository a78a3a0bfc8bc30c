// Copyright 2025 The memfuse authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mount

import "strings"

// ParseOptions parses the value of one "-o" flag into the supplied map.
// The value is a comma-separated list of "key" or "key=value" tokens, per
// mount(8) convention; later occurrences win.
func ParseOptions(m map[string]string, s string) {
	for _, opt := range strings.Split(s, ",") {
		if opt == "" {
			continue
		}

		name, value, _ := strings.Cut(opt, "=")
		m[name] = value
	}
}
