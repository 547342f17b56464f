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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bytedance/editlock"
)

var principalFlag string

var statusCmd = &cobra.Command{
	Use:   "status TYPE ID...",
	Short: "Show who holds the locks on the given resources",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runStatus,
}

var releaseCmd = &cobra.Command{
	Use:   "release TYPE ID...",
	Short: "Release locks held by --as",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRelease,
}

var forceReleaseCmd = &cobra.Command{
	Use:   "force-release TYPE ID...",
	Short: "Remove locks whoever holds them",
	Long: `Remove locks regardless of the holder, for example when a staff member
left a dashboard open and went home. The holder is printed for the audit trail.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runForceRelease,
}

func init() {
	statusCmd.Flags().StringVar(&principalFlag, "as", "", "principal used to compute the editable column")
	releaseCmd.Flags().StringVar(&principalFlag, "as", "", "principal holding the locks")
	_ = releaseCmd.MarkFlagRequired("as")
	rootCmd.AddCommand(statusCmd, releaseCmd, forceReleaseCmd)
}

func parseTarget(args []string) (editlock.ResourceType, []int64, error) {
	rt := editlock.ResourceType(strings.ToUpper(args[0]))
	ids := make([]int64, 0, len(args)-1)
	for _, a := range args[1:] {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid resource id %q", a)
		}
		ids = append(ids, id)
	}
	return rt, ids, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, ids, err := parseTarget(args)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.manager.StatusMany(cmd.Context(), rt, ids, principalFlag)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tLOCKED\tEDITABLE\tHOLDER\tPURPOSE\tEXPIRES\tREMAINING")
	for _, id := range ids {
		s := res[id]
		expires := "-"
		if s.Locked {
			expires = s.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s/%d\t%t\t%t\t%s\t%s\t%s\t%ds\n",
			s.ResourceType, s.ResourceID, s.Locked, s.Editable, s.Holder, s.Purpose, expires, s.RemainingSeconds)
	}
	return w.Flush()
}

func runRelease(cmd *cobra.Command, args []string) error {
	rt, ids, err := parseTarget(args)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.manager.ReleaseMany(cmd.Context(), rt, ids, principalFlag)
	if res != nil {
		for _, id := range res.Released {
			fmt.Fprintf(cmd.OutOrStdout(), "released %s/%d\n", rt, id)
		}
		for _, id := range res.Refused {
			fmt.Fprintf(cmd.OutOrStdout(), "refused %s/%d: held by someone else\n", rt, id)
		}
	}
	return err
}

func runForceRelease(cmd *cobra.Command, args []string) error {
	rt, ids, err := parseTarget(args)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var errs []error
	for _, id := range ids {
		removed, err := a.manager.ForceRelease(cmd.Context(), rt, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%d was not locked\n", rt, id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%d held by %s for %s\n", rt, id, removed.Holder, removed.Purpose)
	}
	return errors.Join(errs...)
}
