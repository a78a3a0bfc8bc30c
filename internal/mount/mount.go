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

// Package mount binds a fuse server to a mount point and owns the session
// lifecycle: mounting, idempotent unmounting with a bounded wait for the
// session loop, and a process-wide registry so forgotten handles are still
// unmounted at shutdown.
package mount

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
)

// Options configures a mount.
type Options struct {
	// The name reported for the file system. Defaults to "memfuse".
	FSName string

	// Allow other users to access the mount. Requires user_allow_other in
	// /etc/fuse.conf unless mounting as root.
	AllowOther bool

	ReadOnly bool

	// Additional raw fuse options, as parsed from repeated "-o" flags.
	FuseOptions map[string]string

	// Destinations for the fuse library's error and debug output. Either
	// may be nil.
	ErrorLogger *log.Logger
	DebugLogger *log.Logger

	// How long Unmount waits for the session loop to exit before falling
	// back to aborting the kernel connection. Defaults to 5 seconds.
	UnmountTimeout time.Duration
}

// State is the lifecycle position of a mounted file system.
type State int32

const (
	StateMounted State = iota
	StateUnmounting
	StateTerminated
)

// MountedFileSystem is a scoped handle for one active mount. Unmount (or
// process shutdown via the registry) tears the session down; Terminated
// handles are inert and further Unmount calls are no-ops.
type MountedFileSystem struct {
	mountPoint string
	timeout    time.Duration

	mfs *fuse.MountedFileSystem

	mu    sync.Mutex
	state State // GUARDED_BY(mu)

	// Closed when the session loop has returned.
	joinDone chan struct{}
	joinErr  error // valid after joinDone is closed
}

// Mount binds the supplied server to mountPoint. The mount point must be an
// existing directory. Failures are classified as *MountError.
func Mount(
	server fuse.Server,
	mountPoint string,
	opts *Options) (*MountedFileSystem, error) {
	if opts == nil {
		opts = &Options{}
	}

	// Pre-flight the mount point for friendlier failure modes than the
	// kernel's.
	fi, err := os.Stat(mountPoint)
	switch {
	case os.IsNotExist(err):
		return nil, &MountError{Kind: ErrNoSuchMountPoint, Cause: err}

	case err != nil:
		return nil, &MountError{Kind: ErrUnknown, Cause: err}

	case !fi.IsDir():
		return nil, &MountError{
			Kind:  ErrNotADirectory,
			Cause: fmt.Errorf("%q is not a directory", mountPoint),
		}
	}

	fsName := opts.FSName
	if fsName == "" {
		fsName = "memfuse"
	}

	options := make(map[string]string)
	for k, v := range opts.FuseOptions {
		options[k] = v
	}

	if opts.AllowOther {
		options["allow_other"] = ""
	}

	// The kernel is the sole authority on access checks against the
	// reported mode bits.
	options["default_permissions"] = ""

	mountCfg := &fuse.MountConfig{
		FSName:      fsName,
		Subtype:     "memfuse",
		VolumeName:  fsName,
		ReadOnly:    opts.ReadOnly,
		Options:     options,
		ErrorLogger: opts.ErrorLogger,
		DebugLogger: opts.DebugLogger,

		EnableParallelDirOps: true,
	}

	fuseMfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, classifyMountFailure(err)
	}

	timeout := opts.UnmountTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	m := &MountedFileSystem{
		mountPoint: mountPoint,
		timeout:    timeout,
		mfs:        fuseMfs,
		state:      StateMounted,
		joinDone:   make(chan struct{}),
	}

	go func() {
		m.joinErr = fuseMfs.Join(context.Background())
		close(m.joinDone)

		// A session that dies without Unmount (e.g. external fusermount -u)
		// still terminates the handle.
		m.mu.Lock()
		m.state = StateTerminated
		m.mu.Unlock()

		unregister(m)
	}()

	register(m)
	return m, nil
}

// MountPoint returns the directory this handle is (or was) mounted on.
func (m *MountedFileSystem) MountPoint() string {
	return m.mountPoint
}

// IsMounted reports whether the session is still live.
func (m *MountedFileSystem) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state == StateMounted
}

// Join blocks until the session has ended, returning the session's exit
// error. It does not trigger an unmount itself.
func (m *MountedFileSystem) Join(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-m.joinDone:
		return m.joinErr
	}
}

// Unmount tears down the session and unmounts the mount point. Idempotent:
// calls after the first (or on an already-dead session) return nil. If the
// session loop does not exit within the configured timeout, the kernel
// connection is aborted and a session-aborted error is returned.
func (m *MountedFileSystem) Unmount(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateMounted {
		m.mu.Unlock()
		return nil
	}

	m.state = StateUnmounting
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = StateTerminated
		m.mu.Unlock()

		unregister(m)
	}()

	// Ask the kernel to unmount. EBUSY here is transient when a process is
	// slow to let go; retry briefly before escalating.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fuse.Unmount(m.mountPoint)
		if err == nil {
			break
		}

		select {
		case <-ctx.Done():
			return &MountError{Kind: ErrSessionAborted, Cause: ctx.Err()}
		case <-time.After(100 * time.Millisecond):
		}
	}

	if err != nil {
		forceAbort(m.mountPoint)
		return &MountError{
			Kind:  ErrSessionAborted,
			Cause: fmt.Errorf("unmount %q: %w", m.mountPoint, err),
		}
	}

	// Wait for the session loop to drain, bounded; on timeout, force the
	// connection abort path so the workers cannot outlive the handle.
	select {
	case <-m.joinDone:
		return m.joinErr

	case <-ctx.Done():
		forceAbort(m.mountPoint)
		return &MountError{Kind: ErrSessionAborted, Cause: ctx.Err()}

	case <-time.After(m.timeout):
		forceAbort(m.mountPoint)
		return &MountError{
			Kind:  ErrSessionAborted,
			Cause: fmt.Errorf("session did not exit within %v", m.timeout),
		}
	}
}
