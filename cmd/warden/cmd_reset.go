// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
)

func (c *cli) resetCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset all demo data to the initial seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := c.confirmed(force, "--force",
				"Reset all demo data to initial state?",
				"Every source, patch and open resolver session is discarded.")
			if err != nil {
				return err
			}
			if !ok {
				ux.Muted("Reset aborted")
				return nil
			}
			st, err := c.client.ResetDemo(c.ctx(cmd))
			if err != nil {
				if IsConflict(err) {
					return fmt.Errorf("a simulation or patch is still running, try again shortly: %w", err)
				}
				return err
			}
			ux.Success(fmt.Sprintf("Demo reset: %d sources, %d drifting", st.Total, st.Drifting))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
