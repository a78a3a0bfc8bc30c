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

// System permissions-related code.
package perms

import (
	"fmt"
	"os/user"
	"strconv"
)

// MyUserAndGroup returns the UID of the user running this process, as
// reported by user.Current, and that user's primary GID. These are the real
// rather than the effective IDs.
func MyUserAndGroup() (uid uint32, gid uint32, err error) {
	// Ask for the current user.
	u, err := user.Current()
	if err != nil {
		err = fmt.Errorf("user.Current: %w", err)
		return
	}

	// Parse UID.
	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing UID (%s): %w", u.Uid, err)
		return
	}

	// Parse GID.
	gid64, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing GID (%s): %w", u.Gid, err)
		return
	}

	uid = uint32(uid64)
	gid = uint32(gid64)
	return
}
