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

package util

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ParentProcessDir is the environment variable through which a daemonizing
// parent hands its working directory to the daemon child. The daemon changes
// its own working directory before flags are parsed again, so relative paths
// on the command line must keep resolving against the invoker's directory.
const ParentProcessDir = "memfuse-parent-process-dir"

// GetResolvedPath expands a leading "~" and makes the path absolute. A
// relative path resolves against ParentProcessDir when that is set (i.e.
// inside a daemonized child), and against the working directory otherwise.
func GetResolvedPath(path string) (string, error) {
	switch {
	case path == "":
		return "", nil

	case path == "~" || strings.HasPrefix(path, "~/"):
		u, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("user.Current: %w", err)
		}

		return filepath.Join(u.HomeDir, strings.TrimPrefix(path, "~")), nil

	default:
		parentDir := os.Getenv(ParentProcessDir)
		if parentDir == "" || filepath.IsAbs(path) {
			resolved, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("filepath.Abs(%q): %w", path, err)
			}

			return resolved, nil
		}

		return filepath.Join(parentDir, path), nil
	}
}
