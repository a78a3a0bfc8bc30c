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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MountTest struct {
	suite.Suite
}

func TestMountSuite(t *testing.T) {
	suite.Run(t, new(MountTest))
}

////////////////////////////////////////////////////////////////////////
// Pre-flight classification
////////////////////////////////////////////////////////////////////////

func (t *MountTest) TestMountPointDoesNotExist() {
	_, err := Mount(nil, filepath.Join(t.T().TempDir(), "nope"), nil)

	require.Error(t.T(), err)
	assert.Equal(t.T(), ErrNoSuchMountPoint, KindOf(err))
}

func (t *MountTest) TestMountPointIsAFile() {
	path := filepath.Join(t.T().TempDir(), "f")
	require.NoError(t.T(), os.WriteFile(path, []byte{}, 0644))

	_, err := Mount(nil, path, nil)

	require.Error(t.T(), err)
	assert.Equal(t.T(), ErrNotADirectory, KindOf(err))
}

func (t *MountTest) TestKindOfForeignError() {
	assert.Equal(t.T(), ErrUnknown, KindOf(os.ErrClosed))
	assert.Equal(t.T(), ErrUnknown, KindOf(nil))
}

func (t *MountTest) TestErrorKindStrings() {
	cases := map[ErrorKind]string{
		ErrNoSuchMountPoint:  "no-such-mount-point",
		ErrNotADirectory:     "not-a-directory",
		ErrAlreadyMounted:    "already-mounted",
		ErrPermissionDenied:  "permission-denied",
		ErrKernelUnavailable: "kernel-unavailable",
		ErrSessionAborted:    "session-aborted",
	}

	for kind, expected := range cases {
		assert.Equal(t.T(), expected, kind.String())
	}
}

////////////////////////////////////////////////////////////////////////
// Option parsing
////////////////////////////////////////////////////////////////////////

func (t *MountTest) TestParseOptions() {
	m := make(map[string]string)

	ParseOptions(m, "allow_other")
	assert.Equal(t.T(), map[string]string{"allow_other": ""}, m)

	ParseOptions(m, "ro,user=jacobsa,foo=bar=baz")
	assert.Equal(t.T(), map[string]string{
		"allow_other": "",
		"ro":          "",
		"user":        "jacobsa",
		"foo":         "bar=baz",
	}, m)

	// Later occurrences win.
	ParseOptions(m, "user=other")
	assert.Equal(t.T(), "other", m["user"])

	// Empty segments are ignored.
	ParseOptions(m, ",,")
	assert.NotContains(t.T(), m, "")
}
