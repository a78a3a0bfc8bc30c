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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/timeutil"
	"github.com/kardianos/osext"
	"github.com/memfuse/memfuse/cfg"
	"github.com/memfuse/memfuse/internal/core"
	"github.com/memfuse/memfuse/internal/fs"
	"github.com/memfuse/memfuse/internal/logger"
	"github.com/memfuse/memfuse/internal/mount"
	"github.com/memfuse/memfuse/internal/perms"
	"github.com/memfuse/memfuse/internal/util"
)

// runMount is the top of the mount path: daemonize unless asked to stay in
// the foreground, then serve until unmounted.
func runMount(mountPoint string, config *cfg.Config) error {
	if err := logger.Init(
		string(config.Logging.Severity),
		config.Logging.Format,
		string(config.Logging.FilePath)); err != nil {
		return err
	}

	if !config.Foreground {
		return daemonizeMount()
	}

	mfs, engine, err := mountWithConfig(mountPoint, config)

	// If we were started by a daemonizing parent, tell it how things went.
	// Outside that arrangement SignalOutcome has nobody to talk to; its
	// error is uninteresting.
	_ = daemonize.SignalOutcome(err)

	if err != nil {
		return fmt.Errorf("mounting %q: %w", mountPoint, err)
	}

	logger.Infof("File system has been successfully mounted at %q.", mountPoint)

	// Let the user unmount with Ctrl-C (SIGINT).
	registerSignalHandler(mfs)

	err = mfs.Join(context.Background())
	if err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	stats := engine.StatsSnapshot()
	logger.Infof(
		"At teardown: %d files, %d directories, %d symlinks, %d bytes of content.",
		stats.Files, stats.Dirs, stats.Symlinks, stats.TotalBytes)

	logger.Infof("Successfully exiting.")
	return nil
}

// Re-invoke ourselves with --foreground under a daemon wrapper, inheriting
// all other flags. The daemon child changes its working directory, so our
// own directory is handed down in the environment; relative mount-point and
// --config-file arguments resolve against it there.
func daemonizeMount() error {
	executable, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("os.Getwd: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)

	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
		fmt.Sprintf("%s=%s", util.ParentProcessDir, cwd),
	}

	err = daemonize.Run(executable, args, env, os.Stdout)
	if err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}

	return nil
}

// mountWithConfig builds the engine, the fuse server, and the mount, based
// on the supplied configuration. The engine is returned alongside the
// handle so the shutdown path can report on it.
func mountWithConfig(
	mountPoint string,
	config *cfg.Config) (*mount.MountedFileSystem, *core.FileSystem, error) {
	// Find the current process's UID and GID. If it was invoked as root and
	// the user hasn't explicitly overridden --uid, everything is going to be
	// owned by root. That is probably not what anyone wants, so warn.
	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		return nil, nil, fmt.Errorf("MyUserAndGroup: %w", err)
	}

	if uid == 0 && config.FileSystem.Uid < 0 {
		fmt.Fprintln(os.Stdout, `
WARNING: memfuse invoked as root. This will cause all files to be owned by
root. If this is not what you intended, invoke memfuse as the user that will
be interacting with the file system.`)
	}

	if config.FileSystem.Uid >= 0 {
		uid = uint32(config.FileSystem.Uid)
	}

	if config.FileSystem.Gid >= 0 {
		gid = uint32(config.FileSystem.Gid)
	}

	engine := core.NewFileSystem(
		timeutil.RealClock(),
		os.FileMode(config.FileSystem.DirMode))

	logger.Infof("Creating a new server...")
	server, err := fs.NewServer(&fs.ServerConfig{
		Engine: engine,
		Clock:  timeutil.RealClock(),
		Uid:    uid,
		Gid:    gid,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fs.NewServer: %w", err)
	}

	fsName := config.AppName
	if fsName == "" {
		fsName = "memfuse"
	}

	logger.Infof("Mounting file system %q...", fsName)

	mfs, err := mount.Mount(server, mountPoint, getMountOptions(fsName, config))
	if err != nil {
		return nil, nil, err
	}

	return mfs, engine, nil
}

func getMountOptions(fsName string, config *cfg.Config) *mount.Options {
	// Handle the repeated "-o" flag.
	parsedOptions := make(map[string]string)
	for _, o := range config.FileSystem.FuseOptions {
		mount.ParseOptions(parsedOptions, o)
	}

	opts := &mount.Options{
		FSName:      fsName,
		AllowOther:  config.FileSystem.AllowOther,
		ReadOnly:    config.FileSystem.ReadOnly,
		FuseOptions: parsedOptions,
	}

	if config.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		opts.ErrorLogger = logger.NewLegacyLogger(logger.LevelError, "fuse: ")
	}
	if config.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		opts.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ")
	}

	return opts
}

func registerSignalHandler(mfs *mount.MountedFileSystem) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for range signalChan {
			logger.Info("Received signal, attempting to unmount...")

			err := mfs.Unmount(context.Background())
			if err != nil {
				logger.Errorf("Failed to unmount in response to signal: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to signal.")
				return
			}
		}
	}()
}
