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

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = `severity=TRACE message="TestLogs: trace"`
	textDebugString   = `severity=DEBUG message="TestLogs: debug"`
	textInfoString    = `severity=INFO message="TestLogs: info"`
	textWarningString = `severity=WARNING message="TestLogs: warning"`
	textErrorString   = `severity=ERROR message="TestLogs: error"`

	jsonTraceString = `"severity":"TRACE","message":"TestLogs: trace"`
	jsonTimestamp   = `"timestamp":{"seconds":\d+,"nanos":\d+}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

func redirectLogsToGivenBuffer(buf *bytes.Buffer, format string, level string) {
	var programLevel = new(slog.LevelVar)
	f := &loggerFactory{format: format, level: programLevel}
	defaultLogger = slog.New(
		f.createJsonOrTextHandler(buf, programLevel, "TestLogs: "))
	setLoggingLevel(level, programLevel)
}

// Run each of the given log calls with the configured severity, returning
// the output produced by each.
func fetchLogOutputForSpecifiedSeverityLevel(format, level string, functions []func()) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, format, level)

	var output []string
	for _, f := range functions {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}

	return output
}

func allLogFuncs() []func() {
	return []func(){
		func() { Tracef("trace") },
		func() { Debugf("debug") },
		func() { Infof("info") },
		func() { Warnf("warning") },
		func() { Errorf("error") },
	}
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *LoggerTest) TestTextSeverityTrace() {
	output := fetchLogOutputForSpecifiedSeverityLevel("text", "TRACE", allLogFuncs())

	expected := []string{
		textTraceString, textDebugString, textInfoString,
		textWarningString, textErrorString,
	}

	for i, want := range expected {
		assert.Contains(t.T(), output[i], want)
	}
}

func (t *LoggerTest) TestTextSeverityWarning() {
	output := fetchLogOutputForSpecifiedSeverityLevel("text", "WARNING", allLogFuncs())

	assert.Empty(t.T(), output[0])
	assert.Empty(t.T(), output[1])
	assert.Empty(t.T(), output[2])
	assert.Contains(t.T(), output[3], textWarningString)
	assert.Contains(t.T(), output[4], textErrorString)
}

func (t *LoggerTest) TestTextSeverityOff() {
	output := fetchLogOutputForSpecifiedSeverityLevel("text", "OFF", allLogFuncs())

	for _, line := range output {
		assert.Empty(t.T(), line)
	}
}

func (t *LoggerTest) TestJsonFormat() {
	output := fetchLogOutputForSpecifiedSeverityLevel(
		"json", "TRACE", []func(){func() { Tracef("trace") }})

	assert.Contains(t.T(), output[0], jsonTraceString)
	assert.Regexp(t.T(), regexp.MustCompile(jsonTimestamp), output[0])
}

func (t *LoggerTest) TestInitRejectsBadFormat() {
	assert.Error(t.T(), Init("INFO", "xml", ""))
}

func (t *LoggerTest) TestLegacyLoggerStripsTrailingNewline() {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, "text", "TRACE")

	l := NewLegacyLogger(LevelError, "fuse: ")
	l.Println("bad thing")

	assert.Contains(t.T(), buf.String(), `severity=ERROR`)
	assert.Contains(t.T(), buf.String(), `fuse: bad thing`)
	assert.NotContains(t.T(), buf.String(), "bad thing\\n")
}

func (t *LoggerTest) TestSeverityNames() {
	assert.Equal(t.T(), "TRACE", severityName(LevelTrace))
	assert.Equal(t.T(), "DEBUG", severityName(LevelDebug))
	assert.Equal(t.T(), "INFO", severityName(LevelInfo))
	assert.Equal(t.T(), "WARNING", severityName(LevelWarn))
	assert.Equal(t.T(), "ERROR", severityName(LevelError))
}
