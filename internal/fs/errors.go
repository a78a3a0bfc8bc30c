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

package fs

import (
	"io"
	"syscall"

	"github.com/memfuse/memfuse/internal/core"
)

const (
	errnoBadHandle    = syscall.EBADF
	errnoIsDir        = syscall.EISDIR
	errnoNotSupported = syscall.EOPNOTSUPP
)

var errEOF = io.EOF

// errno translates an engine error into the errno the kernel should see.
// Engine errors never escape a callback; anything unrecognized becomes EIO.
func errno(err error) error {
	switch core.KindOf(err) {
	case core.ErrNotFound:
		return syscall.ENOENT
	case core.ErrExist:
		return syscall.EEXIST
	case core.ErrNotDir:
		return syscall.ENOTDIR
	case core.ErrIsDir:
		return syscall.EISDIR
	case core.ErrNotEmpty:
		return syscall.ENOTEMPTY
	case core.ErrNotSymlink, core.ErrBadPath, core.ErrInvalid:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
