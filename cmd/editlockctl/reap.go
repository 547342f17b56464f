//
// Copyright 2023 Bytedance Ltd. and/or its affiliates
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

package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/store/db"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete every expired lock once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.manager.SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired locks\n", n)
		return nil
	},
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Run the expiry reaper until interrupted",
	Long: `Run the expiry reaper on the configured cron schedule until SIGINT or SIGTERM.
Only one reaper per host runs at a time, guarded by reaper.lock_file.`,
	Args: cobra.NoArgs,
	RunE: runReap,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the edit_lock table for the mysql and sqlite drivers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, err := openDB(cfg.Store)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := db.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("failed to migrate, err: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "edit_lock table is ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd, reapCmd, migrateCmd)
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fl := flock.New(a.cfg.Reaper.LockFile)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s, err: %w", a.cfg.Reaper.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another reaper holds %s", a.cfg.Reaper.LockFile)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			a.logger.Error(err, "failed to unlock reaper file", "path", a.cfg.Reaper.LockFile)
		}
	}()

	r := editlock.NewReaper(a.manager,
		editlock.WithReapCron(a.cfg.Reaper.Cron),
		editlock.WithReaperLogger(a.logger.WithName("reaper")),
	)
	// 启动时先清理一次
	if _, err := r.RunOnce(ctx); err != nil {
		return err
	}
	r.Start(ctx)
	a.logger.Info("reaper started", "cron", a.cfg.Reaper.Cron)
	<-ctx.Done()
	r.Stop()
	a.logger.Info("reaper stopped")
	return nil
}
