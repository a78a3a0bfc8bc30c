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
	"os"
	"sort"

	"github.com/memfuse/memfuse/internal/pathparse"
)

// The path-based operations of the engine's programmatic surface. Every
// operation parses its path up front, then performs its work in one critical
// section.

func (fs *FileSystem) parse(path string) ([]string, error) {
	components, err := pathparse.Parse(path)
	if err != nil {
		return nil, errorf(ErrBadPath, "%v", err)
	}

	return components, nil
}

// CreateFile creates a file at the given path with the supplied initial
// content, which may be nil. The parent must exist and be a directory; the
// final component must not exist.
func (fs *FileSystem) CreateFile(
	path string,
	content []byte,
	mode os.FileMode) (*File, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.createLocked(components, KindFile, mode, "")
	if err != nil {
		return nil, err
	}

	n.contents = append([]byte(nil), content...)
	n.handleRefs++
	return &File{handle{fs: fs, id: n.id}}, nil
}

// CreateDir creates a directory at the given path. The parent must exist
// and be a directory; the final component must not exist.
func (fs *FileSystem) CreateDir(path string, mode os.FileMode) (*Dir, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.createLocked(components, KindDir, mode, "")
	if err != nil {
		return nil, err
	}

	n.handleRefs++
	return &Dir{handle{fs: fs, id: n.id}}, nil
}

// MakeDirs creates the directory at the given path along with any missing
// ancestors, all with the same mode. Existing directories along the way are
// fine, including the full path itself; any existing non-directory component
// fails with not-a-directory. Directories created before a failure are left
// in place, matching mkdir -p.
func (fs *FileSystem) MakeDirs(path string, mode os.FileMode) (*Dir, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := fs.nodes[RootInodeID]
	for _, name := range components {
		childID, ok := n.children[name]
		if !ok {
			child := fs.allocateNode(name, (mode&permMask)|os.ModeDir)
			child.children = make(map[string]InodeID)
			child.parent = n.id
			n.children[name] = child.id

			now := fs.clock.Now()
			n.mtime = now
			n.ctime = now

			n = child
			continue
		}

		n = fs.nodes[childID]
		if !n.isDir() {
			return nil, errorf(ErrNotDir, "%q is not a directory", name)
		}
	}

	n.handleRefs++
	return &Dir{handle{fs: fs, id: n.id}}, nil
}

// Get resolves the path — without following symlinks anywhere — and returns
// a handle for the node: a *File, *Dir, or *Symlink. The handle keeps the
// node alive even if it is subsequently unlinked; release it with Close.
func (fs *FileSystem) Get(path string) (Node, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve(components)
	if err != nil {
		return nil, err
	}

	n.handleRefs++
	h := handle{fs: fs, id: n.id}
	switch n.kind() {
	case KindDir:
		return &Dir{h}, nil
	case KindSymlink:
		return &Symlink{h}, nil
	default:
		return &File{h}, nil
	}
}

// Exists reports whether the path resolves to a node. Total: malformed
// paths simply report false.
func (fs *FileSystem) Exists(path string) bool {
	components, err := fs.parse(path)
	if err != nil {
		return false
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err = fs.resolve(components)
	return err == nil
}

// Symlink creates a symlink at path whose target is stored verbatim; the
// target is not validated in any way.
func (fs *FileSystem) Symlink(target string, path string) (*Symlink, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.createLocked(components, KindSymlink, 0777, target)
	if err != nil {
		return nil, err
	}

	n.handleRefs++
	return &Symlink{handle{fs: fs, id: n.id}}, nil
}

// Readlink returns the stored target of the symlink at path.
func (fs *FileSystem) Readlink(path string) (string, error) {
	components, err := fs.parse(path)
	if err != nil {
		return "", err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.resolve(components)
	if err != nil {
		return "", err
	}

	if !n.isSymlink() {
		return "", errorf(ErrNotSymlink, "%q is a %v", path, n.kind())
	}

	return n.target, nil
}

// IsSymlink reports whether the path resolves to a symlink. Total.
func (fs *FileSystem) IsSymlink(path string) bool {
	components, err := fs.parse(path)
	if err != nil {
		return false
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.resolve(components)
	return err == nil && n.isSymlink()
}

// RemoveFile unlinks the file or symlink at path. Directories are refused
// with is-a-directory.
func (fs *FileSystem) RemoveFile(path string) error {
	components, err := fs.parse(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.resolveParent(components)
	if err != nil {
		return err
	}

	childID, ok := parent.children[name]
	if !ok {
		return errorf(ErrNotFound, "no such entry %q", name)
	}

	if fs.nodes[childID].isDir() {
		return errorf(ErrIsDir, "%q is a directory", name)
	}

	fs.detachChild(parent, name)
	return nil
}

// RemoveDir removes the empty directory at path. The root is refused with
// invalid-argument.
func (fs *FileSystem) RemoveDir(path string) error {
	components, err := fs.parse(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(components) == 0 {
		return errorf(ErrInvalid, "cannot remove the root directory")
	}

	parent, name, err := fs.resolveParent(components)
	if err != nil {
		return err
	}

	childID, ok := parent.children[name]
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

	fs.detachChild(parent, name)
	return nil
}

// ListDir returns the child names of the directory at path. The order is
// unspecified but stable for a given call.
func (fs *FileSystem) ListDir(path string) ([]string, error) {
	components, err := fs.parse(path)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve(components)
	if err != nil {
		return nil, err
	}

	if !n.isDir() {
		return nil, errorf(ErrNotDir, "%q is not a directory", path)
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}

	sort.Strings(names)
	n.atime = fs.clock.Now()
	return names, nil
}

// Rename atomically moves the node at oldPath to newPath, preserving its
// identity and inode number. An existing destination is replaced only by a
// node of the same kind, and a directory destination must be empty. A
// directory cannot be moved under itself or its descendants.
func (fs *FileSystem) Rename(oldPath string, newPath string) error {
	oldComponents, err := fs.parse(oldPath)
	if err != nil {
		return err
	}

	newComponents, err := fs.parse(newPath)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent, oldName, err := fs.resolveParent(oldComponents)
	if err != nil {
		return err
	}

	newParent, newName, err := fs.resolveParent(newComponents)
	if err != nil {
		return err
	}

	return fs.renameLocked(oldParent, oldName, newParent, newName)
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Create a node of the given kind under the path's parent.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) createLocked(
	components []string,
	kind Kind,
	mode os.FileMode,
	target string) (*node, error) {
	parent, name, err := fs.resolveParent(components)
	if err != nil {
		return nil, err
	}

	if _, ok := parent.children[name]; ok {
		return nil, errorf(ErrExist, "%q already exists", name)
	}

	nodeMode := mode & permMask
	switch kind {
	case KindDir:
		nodeMode |= os.ModeDir
	case KindSymlink:
		nodeMode |= os.ModeSymlink
	}

	n := fs.allocateNode(name, nodeMode)
	n.parent = parent.id
	switch kind {
	case KindDir:
		n.children = make(map[string]InodeID)
	case KindSymlink:
		n.target = target
	}

	parent.children[name] = n.id
	now := fs.clock.Now()
	parent.mtime = now
	parent.ctime = now

	return n, nil
}

// The shared rename implementation behind Rename and the FUSE rename op.
//
// EXCLUSIVE_LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) renameLocked(
	oldParent *node,
	oldName string,
	newParent *node,
	newName string) error {
	oldID, ok := oldParent.children[oldName]
	if !ok {
		return errorf(ErrNotFound, "no such entry %q", oldName)
	}

	n := fs.nodes[oldID]

	// Renaming a node onto itself is a no-op.
	if newID, ok := newParent.children[newName]; ok && newID == oldID {
		return nil
	}

	// A directory must not be moved under itself or a descendant.
	if n.isDir() {
		steps := 0
		for cur := newParent; ; cur = fs.nodes[cur.parent] {
			if cur.id == oldID {
				return errorf(
					ErrInvalid, "cannot move %q under its own subtree", oldName)
			}

			if cur.id == RootInodeID {
				break
			}

			steps++
			if steps > len(fs.nodes) {
				panic("Cycle in parent chain.")
			}
		}
	}

	// Check replaceability of an existing destination.
	if existingID, ok := newParent.children[newName]; ok {
		existing := fs.nodes[existingID]

		if existing.kind() != n.kind() {
			return errorf(
				ErrInvalid,
				"cannot replace %v %q with %v",
				existing.kind(), newName, n.kind())
		}

		if existing.isDir() && len(existing.children) != 0 {
			return errorf(ErrNotEmpty, "%q is not empty", newName)
		}

		fs.detachChild(newParent, newName)
	}

	delete(oldParent.children, oldName)
	newParent.children[newName] = oldID
	n.parent = newParent.id
	n.name = newName

	now := fs.clock.Now()
	n.ctime = now
	oldParent.mtime = now
	oldParent.ctime = now
	newParent.mtime = now
	newParent.ctime = now

	return nil
}
