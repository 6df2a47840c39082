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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

func (c *cli) logsCmd() *cobra.Command {
	var (
		q         datatypes.LogQuery
		follow    bool
		noBacklog bool
		format    string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the system event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			q.Level = strings.ToUpper(q.Level)
			if err := q.Validate(); err != nil {
				return err
			}
			if follow {
				return c.followLogs(c.ctx(cmd), q, !noBacklog)
			}
			entries, err := c.client.Logs(c.ctx(cmd), q)
			if err != nil {
				return err
			}
			if format != formatTable {
				return printStructured(format, entries)
			}
			if len(entries) == 0 {
				ux.Muted("The event log is empty")
				return nil
			}
			for _, e := range entries {
				printEntry(e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new entries until interrupted")
	cmd.Flags().BoolVar(&noBacklog, "no-backlog", false, "with --follow, skip entries logged before connecting")
	cmd.Flags().StringVar(&q.Source, "source", "", "only entries from this component, e.g. BigQuery")
	cmd.Flags().StringVar(&q.Level, "level", "", "only entries at this level: INFO, WARN, ERROR or SUCCESS")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "show at most this many of the newest entries")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "table, json or yaml")
	return cmd
}

// followLogs streams entries through the same filter as the list endpoint.
func (c *cli) followLogs(ctx context.Context, q datatypes.LogQuery, backlog bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	filter := datatypes.LogQuery{Source: q.Source, Level: q.Level}
	ux.Muted(fmt.Sprintf("Following %s (Ctrl+C to stop)", c.client.baseURL))
	return c.client.StreamLogs(ctx, backlog, func(e datatypes.LogEntry) error {
		if len(filter.Apply([]datatypes.LogEntry{e})) == 1 {
			printEntry(e)
		}
		return nil
	})
}

func printEntry(e datatypes.LogEntry) {
	ux.Println(ux.LogLine(e.Timestamp, string(e.Level), string(e.Source), e.Message, e.Details))
}
