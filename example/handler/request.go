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

package handler

import (
	"github.com/bytedance/editlock/example/biz/dispatch/po"
)

type LockInfo struct {
	Locked           bool   `json:"Locked"`
	Editable         bool   `json:"Editable"`
	Holder           string `json:"Holder,omitempty"`
	Purpose          string `json:"Purpose,omitempty"`
	RemainingSeconds int    `json:"RemainingSeconds"`
}

type CreateDashboardRequest struct {
	Operator string `json:"Operator"`
	Customer string `json:"Customer"`
	Address  string `json:"Address"`
}

type CreateDashboardResponse struct {
	ID int64 `json:"ID"`
}

type OpenDashboardRequest struct {
	Operator string `json:"Operator"`
	ID       int64  `json:"ID"`
}

type OpenDashboardResponse struct {
	Dashboard *po.DashboardPO `json:"Dashboard"`
	Lock      *LockInfo       `json:"Lock"`
}

type SaveDashboardRequest struct {
	Operator string  `json:"Operator"`
	ID       int64   `json:"ID"`
	Customer *string `json:"Customer,omitempty"`
	Address  *string `json:"Address,omitempty"`
	Remark   *string `json:"Remark,omitempty"`
}

type SaveDashboardResponse struct {
}

type CloseDashboardRequest struct {
	Operator string `json:"Operator"`
	ID       int64  `json:"ID"`
}

type CloseDashboardResponse struct {
	Released bool `json:"Released"`
}

type GetLockStatusRequest struct {
	Operator string  `json:"Operator"`
	IDs      []int64 `json:"IDs"`
}

type GetLockStatusResponse struct {
	Locks map[int64]*LockInfo `json:"Locks"`
}

type BulkUpdateStatusRequest struct {
	Operator string  `json:"Operator"`
	IDs      []int64 `json:"IDs"`
	Status   string  `json:"Status"`
}

type BulkUpdateStatusResponse struct {
}

type BulkAssignRequest struct {
	Operator string  `json:"Operator"`
	IDs      []int64 `json:"IDs"`
	Assignee string  `json:"Assignee"`
}

type BulkAssignResponse struct {
}

type BulkDeleteRequest struct {
	Operator string  `json:"Operator"`
	IDs      []int64 `json:"IDs"`
}

type BulkDeleteResponse struct {
}
