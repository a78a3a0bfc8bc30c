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

package pathparse_test

import (
	"testing"

	"github.com/memfuse/memfuse/internal/pathparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type PathParseTest struct {
	suite.Suite
}

func TestPathParseSuite(t *testing.T) {
	suite.Run(t, new(PathParseTest))
}

func (t *PathParseTest) TestValidPaths() {
	cases := []struct {
		path     string
		expected []string
	}{
		{"/", nil},
		{"/foo", []string{"foo"}},
		{"/foo/bar", []string{"foo", "bar"}},
		{"//foo///bar//", []string{"foo", "bar"}},
		{"/foo/./bar", []string{"foo", "bar"}},
		{"/./foo", []string{"foo"}},
		{"/foo/..", nil},
		{"/foo/../bar", []string{"bar"}},
		{"/..", nil},
		{"/../../..", nil},
		{"/foo/bar/../../baz", []string{"baz"}},
		{"/...", []string{"..."}},
		{"/..foo", []string{"..foo"}},
		{"/foo bar/baz", []string{"foo bar", "baz"}},
	}

	for _, tc := range cases {
		components, err := pathparse.Parse(tc.path)
		assert.NoError(t.T(), err, "path %q", tc.path)
		assert.Equal(t.T(), tc.expected, components, "path %q", tc.path)
	}
}

func (t *PathParseTest) TestBadPaths() {
	cases := []string{
		"",
		"foo",
		"foo/bar",
		"./foo",
		"../foo",
		"/foo\x00bar",
		"\x00",
	}

	for _, path := range cases {
		_, err := pathparse.Parse(path)
		assert.Error(t.T(), err, "path %q", path)

		var bad *pathparse.BadPathError
		assert.ErrorAs(t.T(), err, &bad, "path %q", path)
	}
}

func (t *PathParseTest) TestMustParsePanics() {
	assert.Panics(t.T(), func() { pathparse.MustParse("relative") })
	assert.Equal(t.T(), []string{"a"}, pathparse.MustParse("/a"))
}
