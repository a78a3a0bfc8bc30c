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

// Package cfg defines the configuration surface of the memfuse binary: the
// schema, the flag bindings, and validation.
package cfg

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type LoggingConfig struct {
	Severity LogSeverity  `mapstructure:"severity"`
	Format   string       `mapstructure:"format"`
	FilePath ResolvedPath `mapstructure:"file-path"`
}

type FileSystemConfig struct {
	FileMode    Octal    `mapstructure:"file-mode"`
	DirMode     Octal    `mapstructure:"dir-mode"`
	Uid         int64    `mapstructure:"uid"`
	Gid         int64    `mapstructure:"gid"`
	AllowOther  bool     `mapstructure:"allow-other"`
	ReadOnly    bool     `mapstructure:"read-only"`
	FuseOptions []string `mapstructure:"fuse-options"`
}

type Config struct {
	Foreground bool             `mapstructure:"foreground"`
	AppName    string           `mapstructure:"app-name"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	FileSystem FileSystemConfig `mapstructure:"file-system"`
}

// BindFlags declares the binary's flags on the supplied flag set and binds
// each to its viper key, so values flow in from flags, config file, or
// both.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.Bool(
		"foreground", false,
		"Stay in the foreground after mounting.")

	flagSet.String(
		"app-name", "",
		"The name to report for the mounted file system.")

	flagSet.String(
		"log-severity", "INFO",
		"Severity of logs to emit: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")

	flagSet.String(
		"log-format", "text",
		"The format of the log output: text or json.")

	flagSet.String(
		"log-file", "",
		"The file for storing logs. The default is to log to stderr.")

	flagSet.String(
		"file-mode", "644",
		"Permission bits for files, in octal. The value is validated but not "+
			"applied: file modes come from the creating call.")

	flagSet.String(
		"dir-mode", "755",
		"Permission bits for the root directory, in octal.")

	flagSet.Int64(
		"uid", -1,
		"UID to report as the owner of all inodes. Defaults to the mounting user.")

	flagSet.Int64(
		"gid", -1,
		"GID to report as the owner of all inodes. Defaults to the mounting group.")

	flagSet.Bool(
		"allow-other", false,
		"Allow users other than the mounting user to access the file system. "+
			"May require user_allow_other in /etc/fuse.conf.")

	flagSet.Bool(
		"read-only", false,
		"Mount the file system read-only.")

	flagSet.StringSliceP(
		"o", "o", nil,
		"Additional system-specific mount options. Repeatable; comma-separated.")

	keys := map[string]string{
		"foreground":               "foreground",
		"app-name":                 "app-name",
		"logging.severity":         "log-severity",
		"logging.format":           "log-format",
		"logging.file-path":        "log-file",
		"file-system.file-mode":    "file-mode",
		"file-system.dir-mode":     "dir-mode",
		"file-system.uid":          "uid",
		"file-system.gid":          "gid",
		"file-system.allow-other":  "allow-other",
		"file-system.read-only":    "read-only",
		"file-system.fuse-options": "o",
	}

	for key, flagName := range keys {
		if err := viper.BindPFlag(key, flagSet.Lookup(flagName)); err != nil {
			return fmt.Errorf("binding flag %q: %w", flagName, err)
		}
	}

	return nil
}

// Validate rejects configurations the rest of the system assumes away.
func Validate(c *Config) error {
	if c.FileSystem.FileMode&^0o7777 != 0 {
		return fmt.Errorf("illegal file-mode: %o", c.FileSystem.FileMode)
	}

	if c.FileSystem.DirMode&^0o7777 != 0 {
		return fmt.Errorf("illegal dir-mode: %o", c.FileSystem.DirMode)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unsupported log format: %q", c.Logging.Format)
	}

	if _, ok := severityRanking[c.Logging.Severity]; !ok {
		return fmt.Errorf("invalid log severity: %q", c.Logging.Severity)
	}

	return nil
}
