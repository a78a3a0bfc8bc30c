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
	"sync"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/memfuse/memfuse/internal/core"
)

// State required for reading from directories: the listing snapshotted at
// open time. Offsets supplied by the kernel index into the snapshot, which
// gives each open a consistent view even while the directory is mutated
// concurrently; entries added or removed after the open don't appear or
// vanish mid-walk.
type dirHandle struct {
	mu sync.Mutex

	// INVARIANT: For each i, entries[i].Offset == i + 1
	//
	// GUARDED_BY(mu)
	entries []fuseutil.Dirent
}

func newDirHandle(entries []core.DirEntry) *dirHandle {
	dh := &dirHandle{
		entries: make([]fuseutil.Dirent, 0, len(entries)),
	}

	for i, e := range entries {
		dh.entries = append(dh.entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.ID),
			Name:   e.Name,
			Type:   direntType(e.Kind),
		})
	}

	return dh
}

func direntType(kind core.Kind) fuseutil.DirentType {
	switch kind {
	case core.KindDir:
		return fuseutil.DT_Directory
	case core.KindSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

// Serve a read against the snapshot. An offset just past the snapshot is
// end-of-directory; anything beyond that is a seekdir we never handed out.
func (dh *dirHandle) ReadDir(op *fuseops.ReadDirOp) error {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	index := int(op.Offset)
	if index > len(dh.entries) {
		return syscall.EINVAL
	}

	for i := index; i < len(dh.entries); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dh.entries[i])
		if n == 0 {
			break
		}

		op.BytesRead += n
	}

	return nil
}
