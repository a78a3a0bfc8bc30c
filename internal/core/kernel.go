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

package core

import (
	"io"
	"os"
	"sort"
	"time"
)

// The inode-ID-based operations backing the FUSE adapter. These mirror the
// kernel's view of the tree: nodes are addressed by ID rather than by path,
// and successful lookups take a reference that the kernel later drops with
// forget.

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) lookupNode(id InodeID) (*node, error) {
	n, ok := fs.nodes[id]
	if !ok {
		return nil, errorf(ErrNotFound, "no inode %v", id)
	}

	return n, nil
}

// KernelLookup resolves a child name within a directory, incrementing the
// child's lookup count on success.
func (fs *FileSystem) KernelLookup(
	parent InodeID,
	name string) (InodeID, Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.lookupNode(parent)
	if err != nil {
		return 0, Attributes{}, err
	}

	if !p.isDir() {
		return 0, Attributes{}, errorf(ErrNotDir, "inode %v is not a directory", parent)
	}

	childID, ok := p.children[name]
	if !ok {
		return 0, Attributes{}, errorf(ErrNotFound, "no such entry %q", name)
	}

	child := fs.nodes[childID]
	child.lookupCount++
	return childID, fs.attributes(child), nil
}

// KernelForget drops n references from the inode's lookup count, destroying
// the node if it is detached and otherwise unreferenced. Unknown IDs are
// ignored, and a count larger than the current lookup count drops it to
// zero.
func (fs *FileSystem) KernelForget(id InodeID, n uint64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, ok := fs.nodes[id]
	if !ok {
		return
	}

	if n > node.lookupCount {
		n = node.lookupCount
	}

	node.lookupCount -= n
	fs.destroyIfUnreferenced(node)
}

// GetAttributesByID returns the node's current attributes.
func (fs *FileSystem) GetAttributesByID(id InodeID) (Attributes, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return Attributes{}, err
	}

	return fs.attributes(n), nil
}

// SetAttributesByID applies the non-nil attribute changes: size (files
// only), permission bits, atime, and mtime. It returns the resulting
// attributes.
func (fs *FileSystem) SetAttributesByID(
	id InodeID,
	size *uint64,
	mode *os.FileMode,
	atime *time.Time,
	mtime *time.Time) (Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return Attributes{}, err
	}

	now := fs.clock.Now()

	if size != nil {
		if !n.isFile() {
			return Attributes{}, errorf(ErrInvalid, "cannot truncate a %v", n.kind())
		}

		fs.truncateLocked(n, *size, now)
	}

	if mode != nil {
		n.mode = (n.mode &^ permMask) | (*mode & permMask)
		n.ctime = now
	}

	if atime != nil {
		n.atime = *atime
	}

	if mtime != nil {
		n.mtime = *mtime
	}

	return fs.attributes(n), nil
}

// KernelCreateFile creates an empty file under the parent, with the lookup
// count already at one.
func (fs *FileSystem) KernelCreateFile(
	parent InodeID,
	name string,
	mode os.FileMode) (InodeID, Attributes, error) {
	return fs.kernelCreate(parent, name, KindFile, mode, "")
}

// KernelMkDir creates a directory under the parent, with the lookup count
// already at one.
func (fs *FileSystem) KernelMkDir(
	parent InodeID,
	name string,
	mode os.FileMode) (InodeID, Attributes, error) {
	return fs.kernelCreate(parent, name, KindDir, mode, "")
}

// KernelCreateSymlink creates a symlink under the parent, with the lookup
// count already at one.
func (fs *FileSystem) KernelCreateSymlink(
	parent InodeID,
	name string,
	target string) (InodeID, Attributes, error) {
	return fs.kernelCreate(parent, name, KindSymlink, 0777, target)
}

func (fs *FileSystem) kernelCreate(
	parent InodeID,
	name string,
	kind Kind,
	mode os.FileMode,
	target string) (InodeID, Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.lookupNode(parent)
	if err != nil {
		return 0, Attributes{}, err
	}

	if !p.isDir() {
		return 0, Attributes{}, errorf(ErrNotDir, "inode %v is not a directory", parent)
	}

	if _, ok := p.children[name]; ok {
		return 0, Attributes{}, errorf(ErrExist, "%q already exists", name)
	}

	nodeMode := mode & permMask
	switch kind {
	case KindDir:
		nodeMode |= os.ModeDir
	case KindSymlink:
		nodeMode |= os.ModeSymlink
	}

	n := fs.allocateNode(name, nodeMode)
	n.parent = p.id
	switch kind {
	case KindDir:
		n.children = make(map[string]InodeID)
	case KindSymlink:
		n.target = target
	}

	p.children[name] = n.id
	now := fs.clock.Now()
	p.mtime = now
	p.ctime = now

	n.lookupCount = 1
	return n.id, fs.attributes(n), nil
}

// KernelUnlink removes the file or symlink with the given name.
func (fs *FileSystem) KernelUnlink(parent InodeID, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.lookupNode(parent)
	if err != nil {
		return err
	}

	childID, ok := p.children[name]
	if !ok {
		return errorf(ErrNotFound, "no such entry %q", name)
	}

	if fs.nodes[childID].isDir() {
		return errorf(ErrIsDir, "%q is a directory", name)
	}

	fs.detachChild(p, name)
	return nil
}

// KernelRmDir removes the empty directory with the given name.
func (fs *FileSystem) KernelRmDir(parent InodeID, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fs.lookupNode(parent)
	if err != nil {
		return err
	}

	childID, ok := p.children[name]
	if !ok {
		return errorf(ErrNotFound, "no such entry %q", name)
	}

	child := fs.nodes[childID]
	if !child.isDir() {
		return errorf(ErrNotDir, "%q is not a directory", name)
	}

	if len(child.children) != 0 {
		return errorf(ErrNotEmpty, "%q has %d entries", name, len(child.children))
	}

	fs.detachChild(p, name)
	return nil
}

// KernelRename has the same semantics as Rename, addressed by parent IDs.
func (fs *FileSystem) KernelRename(
	oldParent InodeID,
	oldName string,
	newParent InodeID,
	newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	op, err := fs.lookupNode(oldParent)
	if err != nil {
		return err
	}

	np, err := fs.lookupNode(newParent)
	if err != nil {
		return err
	}

	if !op.isDir() || !np.isDir() {
		return errorf(ErrNotDir, "rename parents must be directories")
	}

	return fs.renameLocked(op, oldName, np, newName)
}

// KernelReadSymlink returns the symlink's stored target.
func (fs *FileSystem) KernelReadSymlink(id InodeID) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return "", err
	}

	if !n.isSymlink() {
		return "", errorf(ErrNotSymlink, "inode %v is a %v", id, n.kind())
	}

	return n.target, nil
}

// DirEntries snapshots the directory's children, sorted by name. The
// snapshot is independent of later mutation.
func (fs *FileSystem) DirEntries(id InodeID) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return nil, err
	}

	if !n.isDir() {
		return nil, errorf(ErrNotDir, "inode %v is not a directory", id)
	}

	entries := make([]DirEntry, 0, len(n.children))
	for name, childID := range n.children {
		entries = append(entries, DirEntry{
			Name: name,
			ID:   childID,
			Kind: fs.nodes[childID].kind(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	n.atime = fs.clock.Now()
	return entries, nil
}

// ReadAt reads from the file's contents into dst, following io.ReaderAt
// conventions. The file's atime is bumped.
func (fs *FileSystem) ReadAt(id InodeID, dst []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return 0, err
	}

	if !n.isFile() {
		return 0, errorf(ErrIsDir, "inode %v is a %v", id, n.kind())
	}

	n.atime = fs.clock.Now()

	if off >= int64(len(n.contents)) {
		return 0, io.EOF
	}

	count := copy(dst, n.contents[off:])
	if count < len(dst) {
		return count, io.EOF
	}

	return count, nil
}

// WriteAt writes into the file's contents at the given offset, zero-
// extending as needed.
func (fs *FileSystem) WriteAt(id InodeID, p []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return 0, err
	}

	if !n.isFile() {
		return 0, errorf(ErrIsDir, "inode %v is a %v", id, n.kind())
	}

	newLen := int(off) + len(p)
	if len(n.contents) < newLen {
		padding := make([]byte, newLen-len(n.contents))
		n.contents = append(n.contents, padding...)
	}

	copy(n.contents[off:], p)

	now := fs.clock.Now()
	n.mtime = now
	n.ctime = now
	return len(p), nil
}

// GrowTo zero-extends the file to at least the given size. It never
// shrinks; this is the fallocate path.
func (fs *FileSystem) GrowTo(id InodeID, size uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookupNode(id)
	if err != nil {
		return err
	}

	if !n.isFile() {
		return errorf(ErrIsDir, "inode %v is a %v", id, n.kind())
	}

	if size > uint64(len(n.contents)) {
		fs.truncateLocked(n, size, fs.clock.Now())
	}

	return nil
}

// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
// REQUIRES: n.isFile()
func (fs *FileSystem) truncateLocked(n *node, size uint64, now time.Time) {
	intSize := int(size)
	if intSize <= len(n.contents) {
		n.contents = n.contents[:intSize]
	} else {
		padding := make([]byte, intSize-len(n.contents))
		n.contents = append(n.contents, padding...)
	}

	n.mtime = now
	n.ctime = now
}
