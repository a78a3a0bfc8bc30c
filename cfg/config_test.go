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

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ConfigTest struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTest))
}

func (t *ConfigTest) TestOctalUnmarshal() {
	var o Octal

	require.NoError(t.T(), o.UnmarshalText([]byte("644")))
	assert.Equal(t.T(), Octal(0o644), o)

	require.NoError(t.T(), o.UnmarshalText([]byte("0755")))
	assert.Equal(t.T(), Octal(0o755), o)

	assert.Error(t.T(), o.UnmarshalText([]byte("9")))
	assert.Error(t.T(), o.UnmarshalText([]byte("rwx")))
}

func (t *ConfigTest) TestOctalMarshal() {
	text, err := Octal(0o644).MarshalText()
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "644", string(text))
}

func (t *ConfigTest) TestLogSeverityUnmarshal() {
	var s LogSeverity

	require.NoError(t.T(), s.UnmarshalText([]byte("warning")))
	assert.Equal(t.T(), WarningLogSeverity, s)

	require.NoError(t.T(), s.UnmarshalText([]byte("TRACE")))
	assert.Equal(t.T(), TraceLogSeverity, s)

	assert.Error(t.T(), s.UnmarshalText([]byte("verbose")))
}

func (t *ConfigTest) TestSeverityRanking() {
	assert.Less(t.T(), TraceLogSeverity.Rank(), DebugLogSeverity.Rank())
	assert.Less(t.T(), DebugLogSeverity.Rank(), InfoLogSeverity.Rank())
	assert.Less(t.T(), InfoLogSeverity.Rank(), WarningLogSeverity.Rank())
	assert.Less(t.T(), WarningLogSeverity.Rank(), ErrorLogSeverity.Rank())
	assert.Less(t.T(), ErrorLogSeverity.Rank(), OffLogSeverity.Rank())
}

func (t *ConfigTest) TestValidate() {
	valid := Config{
		Logging: LoggingConfig{
			Severity: InfoLogSeverity,
			Format:   "text",
		},
		FileSystem: FileSystemConfig{
			FileMode: 0o644,
			DirMode:  0o755,
		},
	}
	assert.NoError(t.T(), Validate(&valid))

	badMode := valid
	badMode.FileSystem.FileMode = 0o10644
	assert.Error(t.T(), Validate(&badMode))

	badFormat := valid
	badFormat.Logging.Format = "yaml"
	assert.Error(t.T(), Validate(&badFormat))

	badSeverity := valid
	badSeverity.Logging.Severity = "LOUD"
	assert.Error(t.T(), Validate(&badSeverity))
}
