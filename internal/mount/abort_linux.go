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

import "golang.org/x/sys/unix"

// Force the kernel to drop the mount even with requests in flight. A lazy
// detach severs the namespace entry immediately and aborts the fuse
// connection once the last reference goes away.
func forceAbort(mountPoint string) {
	_ = unix.Unmount(mountPoint, unix.MNT_DETACH)
}
