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
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/config"
	"github.com/bytedance/editlock/logger/stdr"
)

func run(t *testing.T, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	principalFlag = ""
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "editlock.db")
	common := []string{"--driver", "sqlite", "--dsn", dsn, "--env-file", filepath.Join(dir, "missing.env")}

	out, err := run(t, append([]string{"migrate"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "edit_lock table is ready")

	cfg := config.StoreConfig{Driver: "sqlite", DSN: dsn}
	cfg.SetupDefault()
	store, closeFn, err := openStore(cfg, stdr.NewStdr("test"))
	require.NoError(t, err)
	defer closeFn()
	m := editlock.NewManager(store)
	ctx := context.Background()
	_, err = m.Acquire(ctx, editlock.ResourceOrder, 42, "alice", editlock.PurposeEdit, time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, editlock.ResourceOrder, 43, "alice", editlock.PurposeEdit, time.Minute)
	require.NoError(t, err)

	out, err = run(t, append([]string{"status", "order", "42", "44", "--as", "bob"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ORDER/42")
	assert.Contains(t, out, "alice")

	out, err = run(t, append([]string{"release", "ORDER", "42", "--as", "bob"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "refused ORDER/42")

	out, err = run(t, append([]string{"force-release", "ORDER", "42", "44"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "removed ORDER/42 held by alice")
	assert.Contains(t, out, "ORDER/44 was not locked")

	out, err = run(t, append([]string{"release", "ORDER", "43", "--as", "alice"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "released ORDER/43")

	out, err = run(t, append([]string{"sweep"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 expired locks")

	_, err = run(t, append([]string{"status", "ORDER", "x"}, common...)...)
	assert.Error(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, _, err := openStore(config.StoreConfig{Driver: "mongo"}, stdr.NewStdr("test"))
	assert.Error(t, err)
}
