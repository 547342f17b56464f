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

package util

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/example/biz/dispatch/dal"
	"github.com/bytedance/editlock/example/biz/dispatch/po"
	"github.com/bytedance/editlock/example/handler"
	"github.com/bytedance/editlock/store/db"
	"github.com/bytedance/editlock/testsuit"
)

func TestHandler(t *testing.T) {
	gdb := testsuit.InitSqlite(testsuit.MySQLOption{NoLog: true})
	require.NoError(t, db.AutoMigrate(gdb))
	require.NoError(t, gdb.AutoMigrate(&po.DashboardPO{}))
	service := handler.NewDispatchService(editlock.NewManager(db.NewDBStore(gdb)), dal.NewDAL(gdb))
	srv := httptest.NewServer(http.HandlerFunc(Handler(service)))
	defer srv.Close()

	call := func(action, operator, body string) (*http.Response, map[string]interface{}) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/?Action="+action, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Operator", operator)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]interface{}{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	resp, out := call("CreateDashboard", "alice", `{"Customer":"c","Address":"a"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := int64(out["ID"].(float64))

	resp, _ = call("OpenDashboard", "alice", fmt.Sprintf(`{"ID":%d}`, id))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = call("OpenDashboard", "bob", fmt.Sprintf(`{"ID":%d}`, id))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, out["Message"], "being edited by alice")

	resp, _ = call("OpenDashboard", "", fmt.Sprintf(`{"ID":%d}`, id))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call("NoSuchAction", "alice", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
