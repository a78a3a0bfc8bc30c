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
)

// Node is a caller-visible reference to a node in the tree: a *File, *Dir,
// or *Symlink. A handle pins its node in the arena, so reads and writes
// through it keep working after the node is unlinked, matching POSIX
// open-unlink semantics. Release the pin with Close; a handle must not
// outlive its engine.
type Node interface {
	Name() string
	InodeID() InodeID
	Mode() os.FileMode
	Kind() Kind
	Attributes() Attributes
	Close() error
}

// The common part of all handles. Field accesses re-acquire the engine
// lock on each call; the handle itself holds no tree state.
type handle struct {
	fs     *FileSystem
	id     InodeID
	closed bool
}

func (h *handle) InodeID() InodeID {
	return h.id
}

func (h *handle) Name() string {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	return h.fs.nodes[h.id].name
}

func (h *handle) Mode() os.FileMode {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	return h.fs.nodes[h.id].mode
}

func (h *handle) Kind() Kind {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	return h.fs.nodes[h.id].kind()
}

func (h *handle) Attributes() Attributes {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()

	return h.fs.attributes(h.fs.nodes[h.id])
}

// Close releases the handle's pin on the node. Idempotent.
func (h *handle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true
	n := h.fs.nodes[h.id]
	n.handleRefs--
	h.fs.destroyIfUnreferenced(n)
	return nil
}

// SetMode replaces the node's permission bits, leaving the type bits
// untouched.
func (h *handle) SetMode(mode os.FileMode) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	n := h.fs.nodes[h.id]
	n.mode = (n.mode &^ permMask) | (mode & permMask)
	n.ctime = h.fs.clock.Now()
}

////////////////////////////////////////////////////////////////////////
// File
////////////////////////////////////////////////////////////////////////

// File is a handle for a regular file.
type File struct {
	handle
}

var _ io.ReaderAt = &File{}
var _ io.WriterAt = &File{}

// Read returns a copy of the file's current contents.
func (f *File) Read() []byte {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n := f.fs.nodes[f.id]
	n.atime = f.fs.clock.Now()
	return append([]byte(nil), n.contents...)
}

// Write replaces the file's contents wholesale.
func (f *File) Write(p []byte) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	n := f.fs.nodes[f.id]
	n.contents = append([]byte(nil), p...)

	now := f.fs.clock.Now()
	n.mtime = now
	n.ctime = now
}

// Truncate sets the file's length: trimming when shrinking, zero-extending
// when growing.
func (f *File) Truncate(size uint64) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	f.fs.truncateLocked(f.fs.nodes[f.id], size, f.fs.clock.Now())
}

// Size returns the file's current length.
func (f *File) Size() uint64 {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	return uint64(len(f.fs.nodes[f.id].contents))
}

// ReadAt implements io.ReaderAt against the file's contents.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.fs.ReadAt(f.id, p, off)
}

// WriteAt implements io.WriterAt, zero-extending as needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.fs.WriteAt(f.id, p, off)
}

////////////////////////////////////////////////////////////////////////
// Dir
////////////////////////////////////////////////////////////////////////

// Dir is a handle for a directory. The child set is a read-only view;
// mutation goes through engine operations only.
type Dir struct {
	handle
}

// ChildNames returns the directory's child names, sorted.
func (d *Dir) ChildNames() []string {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	n := d.fs.nodes[d.id]
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}

	sort.Strings(names)
	n.atime = d.fs.clock.Now()
	return names
}

// Child returns a handle for the named child. The handle pins the child
// and must be closed like any other.
func (d *Dir) Child(name string) (Node, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	n := d.fs.nodes[d.id]
	childID, ok := n.children[name]
	if !ok {
		return nil, errorf(ErrNotFound, "no such entry %q", name)
	}

	child := d.fs.nodes[childID]
	child.handleRefs++
	h := handle{fs: d.fs, id: childID}
	switch child.kind() {
	case KindDir:
		return &Dir{h}, nil
	case KindSymlink:
		return &Symlink{h}, nil
	default:
		return &File{h}, nil
	}
}

////////////////////////////////////////////////////////////////////////
// Symlink
////////////////////////////////////////////////////////////////////////

// Symlink is a handle for a symlink. The target is immutable after
// creation.
type Symlink struct {
	handle
}

// Target returns the stored target, verbatim.
func (s *Symlink) Target() string {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	return s.fs.nodes[s.id].target
}
