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

// Package core implements the in-memory filesystem engine: a tree of file,
// directory, and symlink nodes stored in an arena keyed by inode ID, plus
// the synchronous operations over it. The engine is the only writer to the
// tree; both the programmatic API and the FUSE adapter funnel through it.
package core

import (
	"fmt"
	"os"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// FileSystem is the engine. All methods are safe for concurrent use; every
// operation appears atomic under a single engine-wide lock.
type FileSystem struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	// When acquiring this lock, the caller must hold no other locks.
	mu syncutil.InvariantMutex

	// The arena of live nodes, indexed by ID.
	//
	// INVARIANT: nodes[RootInodeID] exists, is a directory, and has no parent
	// INVARIANT: For each node n, nodes[n.id] == n
	// INVARIANT: For each attached non-root node n,
	//            nodes[n.parent].children[n.name] == n.id
	nodes map[InodeID]*node // GUARDED_BY(mu)

	// The next ID to hand out. IDs are never reclaimed.
	//
	// INVARIANT: nextInodeID > RootInodeID
	// INVARIANT: For each k in nodes, k < nextInodeID
	nextInodeID InodeID // GUARDED_BY(mu)
}

// NewFileSystem creates an empty engine whose root directory carries the
// supplied permission bits.
func NewFileSystem(clock timeutil.Clock, rootPerms os.FileMode) *FileSystem {
	fs := &FileSystem{
		clock:       clock,
		nodes:       make(map[InodeID]*node),
		nextInodeID: RootInodeID + 1,
	}

	now := clock.Now()
	fs.nodes[RootInodeID] = &node{
		id:       RootInodeID,
		name:     "",
		mode:     (rootPerms & permMask) | os.ModeDir,
		atime:    now,
		mtime:    now,
		ctime:    now,
		children: make(map[string]InodeID),
		attached: true,
	}

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

// The mode bits a caller may set: the classic lower twelve.
const permMask = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) checkInvariants() {
	root, ok := fs.nodes[RootInodeID]
	if !ok {
		panic("No root node.")
	}

	if !root.isDir() || root.parent != 0 || !root.attached {
		panic("Malformed root node.")
	}

	for id, n := range fs.nodes {
		if n.id != id {
			panic(fmt.Sprintf("ID mismatch: %v vs. %v", n.id, id))
		}

		if id >= fs.nextInodeID {
			panic(fmt.Sprintf("ID %v not below nextInodeID %v", id, fs.nextInodeID))
		}

		if n.mode&^(permMask|os.ModeDir|os.ModeSymlink) != 0 {
			panic(fmt.Sprintf("Unexpected mode: %v", n.mode))
		}

		if (n.children != nil) != n.isDir() {
			panic(fmt.Sprintf("Child map mismatch for inode %v", id))
		}

		if n.contents != nil && !n.isFile() {
			panic(fmt.Sprintf("Contents on non-file inode %v", id))
		}

		// Each attached non-root node must be linked under its parent, and
		// following parents must reach the root without cycling.
		if n.attached && id != RootInodeID {
			p, ok := fs.nodes[n.parent]
			if !ok || !p.isDir() || p.children[n.name] != id {
				panic(fmt.Sprintf("Broken parent link for inode %v", id))
			}

			steps := 0
			for cur := n; cur.id != RootInodeID; cur = fs.nodes[cur.parent] {
				steps++
				if steps > len(fs.nodes) {
					panic(fmt.Sprintf("Cycle reaching root from inode %v", id))
				}
			}
		}

		if n.isDir() {
			for name, childID := range n.children {
				if name == "" || name == "." || name == ".." {
					panic(fmt.Sprintf("Illegal child name %q", name))
				}

				child, ok := fs.nodes[childID]
				if !ok || child.parent != id || child.name != name || !child.attached {
					panic(fmt.Sprintf("Broken child link %q in inode %v", name, id))
				}
			}
		}
	}
}

// Allocate an arena slot for a new node. The caller fills in the variant
// fields and links it under its parent.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) allocateNode(name string, mode os.FileMode) *node {
	now := fs.clock.Now()
	n := &node{
		id:       fs.nextInodeID,
		name:     name,
		mode:     mode,
		atime:    now,
		mtime:    now,
		ctime:    now,
		attached: true,
	}

	fs.nextInodeID++
	fs.nodes[n.id] = n
	return n
}

// Drop the node's slot if nothing references it any more.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) destroyIfUnreferenced(n *node) {
	if n.destroyable() {
		delete(fs.nodes, n.id)
	}
}

// Detach the child with the given name from the parent, leaving the node
// itself alive until all references drain.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) detachChild(parent *node, name string) {
	child := fs.nodes[parent.children[name]]

	delete(parent.children, name)
	now := fs.clock.Now()
	parent.mtime = now
	parent.ctime = now

	child.parent = 0
	child.attached = false
	child.ctime = now

	fs.destroyIfUnreferenced(child)
}

// Resolve a parsed path to a node, purely structurally: symlinks are never
// followed, on the final component or otherwise.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) resolve(components []string) (*node, error) {
	n := fs.nodes[RootInodeID]
	for _, name := range components {
		if !n.isDir() {
			return nil, errorf(ErrNotDir, "%q is not a directory", n.name)
		}

		childID, ok := n.children[name]
		if !ok {
			return nil, errorf(ErrNotFound, "no such entry %q", name)
		}

		n = fs.nodes[childID]
	}

	return n, nil
}

// Resolve all but the last component, returning the would-be parent
// directory and the final name. Fails on the root path.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) resolveParent(components []string) (*node, string, error) {
	if len(components) == 0 {
		return nil, "", errorf(ErrInvalid, "path resolves to the root")
	}

	parent, err := fs.resolve(components[:len(components)-1])
	if err != nil {
		return nil, "", err
	}

	if !parent.isDir() {
		return nil, "", errorf(ErrNotDir, "%q is not a directory", parent.name)
	}

	return parent, components[len(components)-1], nil
}

// Attributes for the node, computed under the lock.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) attributes(n *node) Attributes {
	attrs := Attributes{
		Mode:  n.mode,
		Atime: n.atime,
		Mtime: n.mtime,
		Ctime: n.ctime,
		Nlink: 1,
	}

	switch n.kind() {
	case KindFile:
		attrs.Size = uint64(len(n.contents))

	case KindSymlink:
		attrs.Size = uint64(len(n.target))

	case KindDir:
		// Classic POSIX convention: self, "." and one ".." per subdirectory.
		attrs.Nlink = 2
		for _, childID := range n.children {
			if fs.nodes[childID].isDir() {
				attrs.Nlink++
			}
		}
	}

	return attrs
}

// Stats summarizes arena usage, for statfs and teardown logging.
type Stats struct {
	Files       uint64
	Dirs        uint64
	Symlinks    uint64
	TotalBytes  uint64
	LiveInodes  uint64
	NextInodeID uint64
}

// StatsSnapshot returns current arena usage.
func (fs *FileSystem) StatsSnapshot() Stats {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var s Stats
	for _, n := range fs.nodes {
		s.LiveInodes++
		switch n.kind() {
		case KindFile:
			s.Files++
			s.TotalBytes += uint64(len(n.contents))
		case KindDir:
			s.Dirs++
		case KindSymlink:
			s.Symlinks++
		}
	}

	s.NextInodeID = uint64(fs.nextInodeID)
	return s
}
