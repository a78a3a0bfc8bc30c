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

package core_test

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/memfuse/memfuse/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// Tests for the ID-addressed operations used by the FUSE adapter.
type KernelOpsTest struct {
	suite.Suite

	clock timeutil.SimulatedClock
	fs    *core.FileSystem
}

func TestKernelOpsSuite(t *testing.T) {
	suite.Run(t, new(KernelOpsTest))
}

func (t *KernelOpsTest) SetupTest() {
	t.clock.SetTime(time.Date(2024, 7, 18, 11, 24, 0, 0, time.Local))
	t.fs = core.NewFileSystem(&t.clock, 0755)
}

func (t *KernelOpsTest) TestLookupAndAttributes() {
	f, err := t.fs.CreateFile("/f", []byte("abc"), 0640)
	require.NoError(t.T(), err)
	defer f.Close()

	id, attrs, err := t.fs.KernelLookup(core.RootInodeID, "f")
	require.NoError(t.T(), err)
	assert.Equal(t.T(), f.InodeID(), id)
	assert.EqualValues(t.T(), 3, attrs.Size)
	assert.EqualValues(t.T(), 1, attrs.Nlink)

	_, _, err = t.fs.KernelLookup(core.RootInodeID, "nope")
	assert.Equal(t.T(), core.ErrNotFound, core.KindOf(err))

	got, err := t.fs.GetAttributesByID(id)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), attrs, got)

	t.fs.KernelForget(id, 1)
}

func (t *KernelOpsTest) TestForgetDestroysDetachedNodes() {
	id, _, err := t.fs.KernelCreateFile(core.RootInodeID, "f", 0644)
	require.NoError(t.T(), err)

	// Unlink while the kernel still knows about the inode: attributes must
	// keep working until the final forget.
	require.NoError(t.T(), t.fs.KernelUnlink(core.RootInodeID, "f"))

	_, err = t.fs.GetAttributesByID(id)
	require.NoError(t.T(), err)

	t.fs.KernelForget(id, 1)

	_, err = t.fs.GetAttributesByID(id)
	assert.Equal(t.T(), core.ErrNotFound, core.KindOf(err))

	// Forgetting an already-destroyed inode is a no-op.
	t.fs.KernelForget(id, 1)
}

func (t *KernelOpsTest) TestProgrammaticHandleOutlivesForget() {
	f, err := t.fs.CreateFile("/f", []byte("pinned"), 0644)
	require.NoError(t.T(), err)

	id, _, err := t.fs.KernelLookup(core.RootInodeID, "f")
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.fs.KernelUnlink(core.RootInodeID, "f"))
	t.fs.KernelForget(id, 1)

	// The programmatic handle is still a reference.
	assert.Equal(t.T(), []byte("pinned"), f.Read())

	require.NoError(t.T(), f.Close())
	_, err = t.fs.GetAttributesByID(id)
	assert.Equal(t.T(), core.ErrNotFound, core.KindOf(err))
}

func (t *KernelOpsTest) TestKernelCreateCollision() {
	_, _, err := t.fs.KernelMkDir(core.RootInodeID, "d", 0755)
	require.NoError(t.T(), err)

	_, _, err = t.fs.KernelMkDir(core.RootInodeID, "d", 0755)
	assert.Equal(t.T(), core.ErrExist, core.KindOf(err))

	_, _, err = t.fs.KernelCreateFile(core.RootInodeID, "d", 0644)
	assert.Equal(t.T(), core.ErrExist, core.KindOf(err))
}

func (t *KernelOpsTest) TestKernelSymlink() {
	id, attrs, err := t.fs.KernelCreateSymlink(core.RootInodeID, "l", "/elsewhere")
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), len("/elsewhere"), attrs.Size)

	target, err := t.fs.KernelReadSymlink(id)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "/elsewhere", target)

	_, err = t.fs.KernelReadSymlink(core.RootInodeID)
	assert.Equal(t.T(), core.ErrNotSymlink, core.KindOf(err))
}

func (t *KernelOpsTest) TestKernelRmDir() {
	dirID, _, err := t.fs.KernelMkDir(core.RootInodeID, "d", 0755)
	require.NoError(t.T(), err)

	_, _, err = t.fs.KernelCreateFile(dirID, "f", 0644)
	require.NoError(t.T(), err)

	err = t.fs.KernelRmDir(core.RootInodeID, "d")
	assert.Equal(t.T(), core.ErrNotEmpty, core.KindOf(err))

	require.NoError(t.T(), t.fs.KernelUnlink(dirID, "f"))
	require.NoError(t.T(), t.fs.KernelRmDir(core.RootInodeID, "d"))
}

func (t *KernelOpsTest) TestDirEntriesSnapshot() {
	_, _, err := t.fs.KernelCreateFile(core.RootInodeID, "a", 0644)
	require.NoError(t.T(), err)

	_, _, err = t.fs.KernelMkDir(core.RootInodeID, "b", 0755)
	require.NoError(t.T(), err)

	_, _, err = t.fs.KernelCreateSymlink(core.RootInodeID, "c", "/t")
	require.NoError(t.T(), err)

	entries, err := t.fs.DirEntries(core.RootInodeID)
	require.NoError(t.T(), err)
	require.Len(t.T(), entries, 3)
	assert.Equal(t.T(), "a", entries[0].Name)
	assert.Equal(t.T(), core.KindFile, entries[0].Kind)
	assert.Equal(t.T(), "b", entries[1].Name)
	assert.Equal(t.T(), core.KindDir, entries[1].Kind)
	assert.Equal(t.T(), "c", entries[2].Name)
	assert.Equal(t.T(), core.KindSymlink, entries[2].Kind)

	// The snapshot is unaffected by subsequent mutation.
	require.NoError(t.T(), t.fs.KernelUnlink(core.RootInodeID, "a"))
	assert.Equal(t.T(), "a", entries[0].Name)
}

func (t *KernelOpsTest) TestSetAttributes() {
	id, _, err := t.fs.KernelCreateFile(core.RootInodeID, "f", 0644)
	require.NoError(t.T(), err)

	size := uint64(5)
	attrs, err := t.fs.SetAttributesByID(id, &size, nil, nil, nil)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 5, attrs.Size)

	buf := make([]byte, 5)
	n, err := t.fs.ReadAt(id, buf, 0)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), 5, n)
	assert.Equal(t.T(), []byte{0, 0, 0, 0, 0}, buf)

	dirID, _, err := t.fs.KernelMkDir(core.RootInodeID, "d", 0755)
	require.NoError(t.T(), err)

	_, err = t.fs.SetAttributesByID(dirID, &size, nil, nil, nil)
	assert.Equal(t.T(), core.ErrInvalid, core.KindOf(err))
}

func (t *KernelOpsTest) TestGrowTo() {
	id, _, err := t.fs.KernelCreateFile(core.RootInodeID, "f", 0644)
	require.NoError(t.T(), err)

	_, err = t.fs.WriteAt(id, []byte("ab"), 0)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.fs.GrowTo(id, 6))
	attrs, err := t.fs.GetAttributesByID(id)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 6, attrs.Size)

	// Never shrinks.
	require.NoError(t.T(), t.fs.GrowTo(id, 1))
	attrs, err = t.fs.GetAttributesByID(id)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 6, attrs.Size)
}

func (t *KernelOpsTest) TestKernelRename() {
	srcID, _, err := t.fs.KernelMkDir(core.RootInodeID, "src", 0755)
	require.NoError(t.T(), err)

	dstID, _, err := t.fs.KernelMkDir(core.RootInodeID, "dst", 0755)
	require.NoError(t.T(), err)

	fileID, _, err := t.fs.KernelCreateFile(srcID, "f", 0644)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.fs.KernelRename(srcID, "f", dstID, "g"))

	id, _, err := t.fs.KernelLookup(dstID, "g")
	require.NoError(t.T(), err)
	assert.Equal(t.T(), fileID, id)

	_, _, err = t.fs.KernelLookup(srcID, "f")
	assert.Equal(t.T(), core.ErrNotFound, core.KindOf(err))
}
