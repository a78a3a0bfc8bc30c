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

// Package pathparse normalizes absolute POSIX paths into component lists.
// It never consults the file system; parsing is pure.
package pathparse

import (
	"fmt"
	"strings"
)

// BadPathError is returned for paths that are empty, relative, or contain a
// NUL byte.
type BadPathError struct {
	Path   string
	Reason string
}

func (e *BadPathError) Error() string {
	return fmt.Sprintf("bad path %q: %s", e.Path, e.Reason)
}

// Parse splits the supplied absolute path into an ordered list of component
// names. Empty segments (from repeated slashes) and "." are dropped; ".."
// pops the prior component, and popping past the root yields the root. The
// root itself parses to an empty list.
func Parse(path string) ([]string, error) {
	if path == "" {
		return nil, &BadPathError{Path: path, Reason: "empty"}
	}

	if strings.ContainsRune(path, 0) {
		return nil, &BadPathError{Path: path, Reason: "contains NUL byte"}
	}

	if path[0] != '/' {
		return nil, &BadPathError{Path: path, Reason: "not absolute"}
	}

	var components []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			// Collapse "//" and drop ".".

		case "..":
			if len(components) > 0 {
				components = components[:len(components)-1]
			}

			if len(components) == 0 {
				components = nil
			}

		default:
			components = append(components, seg)
		}
	}

	return components, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// compile-time-constant paths in tests.
func MustParse(path string) []string {
	components, err := Parse(path)
	if err != nil {
		panic(err)
	}

	return components
}
