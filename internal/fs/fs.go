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

// Package fs adapts a core.FileSystem engine to the kernel-facing callback
// surface of the FUSE low-level protocol. Each callback is translated into
// engine operations; engine error kinds are mapped to errno values on the
// way out. The engine's inode IDs double as the kernel's inode numbers.
package fs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/memfuse/memfuse/internal/core"
)

type ServerConfig struct {
	// The engine to expose. Must be non-nil.
	Engine *core.FileSystem

	// A clock used for attribute expiration times.
	Clock timeutil.Clock

	// The owner reported for every inode, normally the mounting process's
	// effective IDs.
	Uid uint32
	Gid uint32
}

// NewServer creates a fuse server that serves kernel requests from the
// supplied engine.
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("NewServer: nil engine")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	fs := &fileSystem{
		engine:     cfg.Engine,
		clock:      clock,
		uid:        cfg.Uid,
		gid:        cfg.Gid,
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
	}

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fuseutil.NewFileSystemServer(fs), nil
}

////////////////////////////////////////////////////////////////////////
// fileSystem type
////////////////////////////////////////////////////////////////////////

// LOCK ORDERING
//
// The adapter lock guards only the directory handle table; tree state lives
// behind the engine's own lock. Engine calls are never made while holding
// the adapter lock, so the two can never deadlock against each other.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	engine *core.FileSystem
	clock  timeutil.Clock

	/////////////////////////
	// Constant data
	/////////////////////////

	uid uint32
	gid uint32

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// The collection of open directory handles.
	//
	// INVARIANT: For each k in dirHandles, k < nextHandleID
	dirHandles   map[fuseops.HandleID]*dirHandle // GUARDED_BY(mu)
	nextHandleID fuseops.HandleID                // GUARDED_BY(mu)
}

func (fs *fileSystem) checkInvariants() {
	for id := range fs.dirHandles {
		if id >= fs.nextHandleID {
			panic(fmt.Sprintf("Handle ID %v not below nextHandleID %v", id, fs.nextHandleID))
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) inodeAttributes(attrs core.Attributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  attrs.Size,
		Nlink: attrs.Nlink,
		Mode:  attrs.Mode,
		Atime: attrs.Atime,
		Mtime: attrs.Mtime,
		Ctime: attrs.Ctime,
		// The engine does not track a birth time; ctime is the closest thing.
		Crtime: attrs.Ctime,
		Uid:    fs.uid,
		Gid:    fs.gid,
	}
}

// Fill in a ChildInodeEntry for the node. The engine never mutates
// spontaneously, so the kernel may cache for as long as it likes; it also
// handles invalidation.
func (fs *fileSystem) fillEntry(
	e *fuseops.ChildInodeEntry,
	id core.InodeID,
	attrs core.Attributes) {
	e.Child = fuseops.InodeID(id)
	e.Attributes = fs.inodeAttributes(attrs)
	e.AttributesExpiration = fs.clock.Now().Add(365 * 24 * time.Hour)
	e.EntryExpiration = e.AttributesExpiration
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	stats := fs.engine.StatsSnapshot()

	// The store is bounded only by memory; report a roomy synthetic device
	// sized from current usage.
	op.BlockSize = 4096
	op.IoSize = 1 << 16
	op.Blocks = stats.TotalBytes/uint64(op.BlockSize) + 1<<28
	op.BlocksFree = 1 << 28
	op.BlocksAvailable = op.BlocksFree
	op.Inodes = stats.LiveInodes + 1<<24
	op.InodesFree = 1 << 24

	return nil
}

func (fs *fileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	childID, attrs, err := fs.engine.KernelLookup(
		core.InodeID(op.Parent), op.Name)
	if err != nil {
		return errno(err)
	}

	fs.fillEntry(&op.Entry, childID, attrs)
	return nil
}

func (fs *fileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	attrs, err := fs.engine.GetAttributesByID(core.InodeID(op.Inode))
	if err != nil {
		return errno(err)
	}

	op.Attributes = fs.inodeAttributes(attrs)
	op.AttributesExpiration = fs.clock.Now().Add(365 * 24 * time.Hour)
	return nil
}

func (fs *fileSystem) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	attrs, err := fs.engine.SetAttributesByID(
		core.InodeID(op.Inode), op.Size, op.Mode, op.Atime, op.Mtime)
	if err != nil {
		return errno(err)
	}

	op.Attributes = fs.inodeAttributes(attrs)
	op.AttributesExpiration = fs.clock.Now().Add(365 * 24 * time.Hour)
	return nil
}

func (fs *fileSystem) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) error {
	fs.engine.KernelForget(core.InodeID(op.Inode), op.N)
	return nil
}

func (fs *fileSystem) BatchForget(
	ctx context.Context,
	op *fuseops.BatchForgetOp) error {
	for _, entry := range op.Entries {
		fs.engine.KernelForget(core.InodeID(entry.Inode), entry.N)
	}

	return nil
}

func (fs *fileSystem) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) error {
	childID, attrs, err := fs.engine.KernelMkDir(
		core.InodeID(op.Parent), op.Name, op.Mode)
	if err != nil {
		return errno(err)
	}

	fs.fillEntry(&op.Entry, childID, attrs)
	return nil
}

func (fs *fileSystem) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp) error {
	// Only regular files; no device nodes in this tree.
	if op.Mode&os.ModeType != 0 {
		return errnoNotSupported
	}

	childID, attrs, err := fs.engine.KernelCreateFile(
		core.InodeID(op.Parent), op.Name, op.Mode)
	if err != nil {
		return errno(err)
	}

	fs.fillEntry(&op.Entry, childID, attrs)
	return nil
}

func (fs *fileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	childID, attrs, err := fs.engine.KernelCreateFile(
		core.InodeID(op.Parent), op.Name, op.Mode)
	if err != nil {
		return errno(err)
	}

	fs.fillEntry(&op.Entry, childID, attrs)

	// Reads and writes are served statelessly from the inode, so there is
	// nothing interesting to put in the handle.
	return nil
}

func (fs *fileSystem) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp) error {
	childID, attrs, err := fs.engine.KernelCreateSymlink(
		core.InodeID(op.Parent), op.Name, op.Target)
	if err != nil {
		return errno(err)
	}

	fs.fillEntry(&op.Entry, childID, attrs)
	return nil
}

func (fs *fileSystem) Rename(
	ctx context.Context,
	op *fuseops.RenameOp) error {
	err := fs.engine.KernelRename(
		core.InodeID(op.OldParent), op.OldName,
		core.InodeID(op.NewParent), op.NewName)
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) error {
	err := fs.engine.KernelRmDir(core.InodeID(op.Parent), op.Name)
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	err := fs.engine.KernelUnlink(core.InodeID(op.Parent), op.Name)
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	// Snapshot the directory now; the handle serves this view for its whole
	// lifetime, regardless of concurrent mutation.
	entries, err := fs.engine.DirEntries(core.InodeID(op.Inode))
	if err != nil {
		return errno(err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	op.Handle = fs.nextHandleID
	fs.nextHandleID++
	fs.dirHandles[op.Handle] = newDirHandle(entries)

	return nil
}

func (fs *fileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	fs.mu.RLock()
	dh := fs.dirHandles[op.Handle]
	fs.mu.RUnlock()

	if dh == nil {
		return errnoBadHandle
	}

	return dh.ReadDir(op)
}

func (fs *fileSystem) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.dirHandles, op.Handle)
	return nil
}

func (fs *fileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	attrs, err := fs.engine.GetAttributesByID(core.InodeID(op.Inode))
	if err != nil {
		return errno(err)
	}

	if attrs.Mode.IsDir() {
		return errnoIsDir
	}

	// The tree only changes through the kernel or through the engine, which
	// the kernel observes via invalidation; the page cache can be kept.
	op.KeepPageCache = true
	return nil
}

func (fs *fileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	var err error
	op.BytesRead, err = fs.engine.ReadAt(
		core.InodeID(op.Inode), op.Dst, op.Offset)

	// io.EOF is how the engine says "short read"; the FUSE protocol wants a
	// plain short count instead.
	if err == errEOF {
		err = nil
	}

	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	_, err := fs.engine.WriteAt(
		core.InodeID(op.Inode), op.Data, op.Offset)
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	// Contents are always "durable" in memory; nothing to do.
	return nil
}

func (fs *fileSystem) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (fs *fileSystem) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) error {
	var err error
	op.Target, err = fs.engine.KernelReadSymlink(core.InodeID(op.Inode))
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp) error {
	// Only plain preallocation; hole punching and friends are not
	// meaningful for a byte slice.
	if op.Mode != 0 {
		return errnoNotSupported
	}

	err := fs.engine.GrowTo(
		core.InodeID(op.Inode), op.Offset+op.Length)
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *fileSystem) Destroy() {
}
