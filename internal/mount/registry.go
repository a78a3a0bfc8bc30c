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

import (
	"context"
	"sync"
	"time"
)

// The process-wide set of live mounts, so shutdown paths can unmount
// handles their owners forgot about. Abnormal termination is the kernel's
// problem: the fuse connection aborts when the process dies.
var (
	registryMu sync.Mutex
	registry   = make(map[*MountedFileSystem]struct{})
)

func register(m *MountedFileSystem) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[m] = struct{}{}
}

func unregister(m *MountedFileSystem) {
	registryMu.Lock()
	defer registryMu.Unlock()

	delete(registry, m)
}

// UnmountAll unmounts every live handle. Call it from process shutdown
// paths (signal handlers, deferred cleanup in main).
func UnmountAll() {
	registryMu.Lock()
	live := make([]*MountedFileSystem, 0, len(registry))
	for m := range registry {
		live = append(live, m)
	}
	registryMu.Unlock()

	for _, m := range live {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = m.Unmount(ctx)
		cancel()
	}
}
