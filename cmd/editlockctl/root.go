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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/config"
	"github.com/bytedance/editlock/logger/stdr"
)

var (
	cfgFile string
	envFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "editlockctl",
	Short: "Inspect and maintain edit locks of the dispatch back office",
	Long: `editlockctl works on the lock store shared by the dispatch back office.

It shows who holds a lock, releases stale or abandoned locks on behalf of an
administrator and runs the periodic expiry reaper.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	bindFlags(rootCmd, v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with EDITLOCK_* variables, ignored when missing")
	flags.String("driver", "", "store driver: mysql, sqlite, redis or memory")
	flags.String("dsn", "", "database dsn for mysql or sqlite")
	flags.String("redis-addr", "", "redis address")
	flags.IntP("verbosity", "v", 0, "log verbosity, 1 for debug")

	_ = v.BindPFlag("store.driver", flags.Lookup("driver"))
	_ = v.BindPFlag("store.dsn", flags.Lookup("dsn"))
	_ = v.BindPFlag("store.redis_addr", flags.Lookup("redis-addr"))
	_ = v.BindPFlag("verbosity", flags.Lookup("verbosity"))
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s, err: %w", envFile, err)
		}
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	stdr.SetVerbosity(cfg.Verbosity)
	return cfg, nil
}

// app 一次命令执行需要的组件
type app struct {
	cfg     *config.Config
	logger  logr.Logger
	store   editlock.IStore
	manager *editlock.Manager
	close   func() error
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := stdr.NewStdr("editlockctl")
	store, closeFn, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	types := make([]editlock.ResourceType, 0, len(cfg.Lock.ResourceTypes))
	for _, t := range cfg.Lock.ResourceTypes {
		types = append(types, editlock.ResourceType(t))
	}
	m := editlock.NewManager(store,
		editlock.WithLogger(logger),
		editlock.WithDefaultTTL(cfg.Lock.DefaultTTL),
		editlock.WithResourceTypes(types...),
		editlock.WithLazyCleanup(cfg.Lock.LazyCleanup),
	)
	return &app{cfg: cfg, logger: logger, store: store, manager: m, close: closeFn}, nil
}
