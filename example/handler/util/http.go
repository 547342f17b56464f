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
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/example/handler"
)

type errorResponse struct {
	Message string                 `json:"Message"`
	Lock    *editlock.ConflictError `json:"Lock,omitempty"`
}

// LockedMessage 给前端展示的提示
func LockedMessage(e *editlock.ConflictError) string {
	return fmt.Sprintf("%s %d is being edited by %s (%s), please retry in %d seconds",
		e.ResourceType, e.ResourceID, e.Holder, e.Purpose, e.RemainingSeconds)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	bs, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprint(w, string(bs))
}

func writeError(w http.ResponseWriter, err error) {
	var conflict *editlock.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, &errorResponse{Message: LockedMessage(conflict), Lock: conflict})
	case errors.Is(err, editlock.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, &errorResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, &errorResponse{Message: "server error"})
	}
}

// Handler 按 Action 参数反射调用 service 方法
func Handler(service *handler.DispatchServiceImpl) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		action := r.URL.Query().Get("Action")
		serviceVal := reflect.ValueOf(service)
		method := serviceVal.MethodByName(action)
		if !method.IsValid() {
			http.NotFound(w, r)
			return
		}
		t := method.Type().In(1)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		req := reflect.New(t)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "body invalid", 400)
			return
		}
		if err := json.Unmarshal(data, req.Interface()); err != nil {
			http.Error(w, "body invalid", 400)
			return
		}
		if op := r.Header.Get("X-Operator"); op != "" {
			if f := req.Elem().FieldByName("Operator"); f.IsValid() && f.CanSet() {
				f.SetString(op)
			}
		}
		rets := method.Call([]reflect.Value{reflect.ValueOf(ctx), req})
		if errValue := rets[1].Interface(); errValue != nil {
			writeError(w, errValue.(error))
			return
		}
		writeJSON(w, http.StatusOK, rets[0].Interface())
	}
}
