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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
)

func (c *cli) sourcesCmd() *cobra.Command {
	var (
		q      datatypes.SourceQuery
		format string
	)
	cmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"ls"},
		Short:   "List data sources",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			q.Status = strings.ToUpper(q.Status)
			if err := q.Validate(); err != nil {
				return err
			}
			sources, err := c.client.ListSources(c.ctx(cmd), q)
			if err != nil {
				return err
			}
			if format != formatTable {
				return printStructured(format, sources)
			}
			printSourceTable(sources)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Search, "search", "", "substring of the source name or id")
	cmd.Flags().StringVar(&q.Status, "status", "", "ALL, DRIFT or HEALTHY")
	cmd.Flags().StringVar(&q.Type, "type", "", "ALL, PubSub, GCS or CloudSQL")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "table, json or yaml")
	return cmd
}

func printSourceTable(sources []datatypes.DataSource) {
	if len(sources) == 0 {
		ux.Warning("No data sources match the filter")
		return
	}
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			string(s.Type),
			ux.StatusBadge(string(s.Status)),
			s.DisplayVersion(),
			strconv.Itoa(s.PatchCount()),
		})
	}
	ux.Table([]string{"ID", "NAME", "TYPE", "STATUS", "VERSION", "PATCHES"}, rows)
	ux.Muted(fmt.Sprintf("%d sources", len(sources)))
}

func (c *cli) sourceCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "source <id>",
		Short: "Show one data source with its schema and drift details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			v, err := c.client.GetSource(c.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			if format != formatTable {
				return printStructured(format, v)
			}
			printSource(v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "table, json or yaml")
	return cmd
}

func printSource(v SourceView) {
	s := v.Source
	ux.Title(s.Name)
	ux.KeyValues(
		"id", s.ID,
		"type", string(s.Type),
		"status", ux.StatusBadge(string(s.Status)),
		"version", v.Version,
		"patches", strconv.Itoa(v.Patches),
		"updated", s.LastUpdated.Local().Format("2006-01-02 15:04:05"),
	)

	ux.Println("")
	ux.Table([]string{"FIELD", "TYPE", "MODE"}, fieldRows(s.Schema))

	if d := s.DriftDetails; d != nil {
		var sb strings.Builder
		for _, f := range d.UnexpectedFields {
			fmt.Fprintf(&sb, "+ %s %s\n", f.Name, f.Type)
		}
		for _, f := range d.MissingFields {
			fmt.Fprintf(&sb, "- %s %s\n", f.Name, f.Type)
		}
		ux.Println("")
		ux.WarningBox("Schema drift detected", strings.TrimRight(sb.String(), "\n"))
		if d.DetectionReport != "" {
			ux.Println(renderMarkdown(d.DetectionReport))
		}
		if d.HasProposal() {
			ux.Muted("A resolution proposal is saved. Run: warden resolve " + s.ID)
		}
	}

	if len(s.History) > 0 {
		ux.Println("")
		rows := make([][]string, 0, len(s.History))
		for _, p := range s.History {
			names := make([]string, 0, len(p.AddedFields))
			for _, f := range p.AddedFields {
				names = append(names, f.Name)
			}
			rows = append(rows, []string{p.ID, p.AppliedAt.Local().Format("2006-01-02 15:04:05"), strings.Join(names, ", "), p.Description})
		}
		ux.Table([]string{"PATCH", "APPLIED", "ADDED", "DESCRIPTION"}, rows)
	}
}

func fieldRows(fields []datatypes.SchemaField) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f.Name, f.Type, string(f.Mode)})
	}
	return rows
}

func (c *cli) statsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals for the source collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			st, err := c.client.Stats(c.ctx(cmd))
			if err != nil {
				return err
			}
			if format != formatTable {
				return printStructured(format, st)
			}
			ux.KeyValues(
				"total", strconv.Itoa(st.Total),
				"drifting", strconv.Itoa(st.Drifting),
				"healthy", strconv.Itoa(st.Healthy),
				"patches", strconv.Itoa(st.TotalPatches),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "table, json or yaml")
	return cmd
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is up and show the AI mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := c.client.Health(c.ctx(cmd))
			if err != nil {
				return err
			}
			ux.Success(fmt.Sprintf("warden is %s (AI %s mode, %d sources)", h.Status, h.AIMode, h.Sources))
			return nil
		},
	}
}
