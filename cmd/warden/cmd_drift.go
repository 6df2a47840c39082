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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
)

// =============================================================================
// simulate
// =============================================================================

func (c *cli) simulateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Push a payload with an unexpected field to a random healthy source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			var res simulator.Result
			err := ux.WithSpinner("Simulating schema drift...", func(*ux.Spinner) error {
				var err error
				res, err = c.client.Simulate(c.ctx(cmd))
				return err
			})
			if err != nil {
				return err
			}
			if format != formatTable {
				return printStructured(format, res)
			}
			printSimulation(res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "table, json or yaml")
	return cmd
}

func printSimulation(res simulator.Result) {
	switch res.Outcome {
	case simulator.OutcomeDrifted:
		ux.WarningBox("Schema drift detected",
			fmt.Sprintf("%s (%s) received unexpected field %s", res.SourceName, res.SourceID, res.Field))
		ux.Muted("Resolve it with: warden resolve " + res.SourceID)
	case simulator.OutcomeSkipped:
		ux.Info("No healthy sources available to drift")
	default:
		ux.Error("Simulation failed: " + res.Error)
	}
}

// =============================================================================
// resolve
// =============================================================================

type resolveOptions struct {
	regenerate bool
	yes        bool
	dryRun     bool
}

func (c *cli) resolveCmd() *cobra.Command {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Generate, review and apply an AI fix for a drifting source",
		Long: `resolve opens the resolver for a drifting source, asks the AI for a
proposal when none is saved (or with --regenerate), shows the analysis, the
SQLX code and the schema diff, and applies the patch after confirmation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(c.ctx(cmd), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.regenerate, "regenerate", false, "ask the AI for a new proposal even if one is saved")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "apply without asking")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the proposal and leave the session open")

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Close the resolver session for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.CancelResolver(c.ctx(cmd), args[0]); err != nil {
				return err
			}
			ux.Success("Resolver closed for " + args[0])
			return nil
		},
	})
	return cmd
}

func (c *cli) runResolve(ctx context.Context, id string, opts resolveOptions) error {
	s, err := c.client.OpenResolver(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case s.State == resolver.StateExecuting:
		return fmt.Errorf("resolution of %s is already executing (phase %s)", id, s.Phase)
	case s.Generating:
		return fmt.Errorf("a proposal for %s is already being generated", id)
	case s.State == resolver.StateDiagnostic:
		opts.regenerate = true
	}

	if opts.regenerate {
		err = ux.NewSpinner("Analyzing drift with AI...").WithType(ux.SpinnerPulse).Run(func(*ux.Spinner) error {
			s, err = c.client.Generate(ctx, id)
			return err
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
	}

	p, err := c.client.Preview(ctx, id)
	if err != nil {
		return err
	}
	printPreview(p)

	if opts.dryRun {
		ux.Muted(fmt.Sprintf("Session left open (%s). Apply with: warden resolve %s  Discard with: warden resolve cancel %s", s.State, id, id))
		return nil
	}

	ok, err := c.confirmed(opts.yes, "--yes",
		fmt.Sprintf("Apply the patch to %s?", id),
		fmt.Sprintf("Schema %s -> %s via git, Dataform and BigQuery", p.CurrentVersion, p.NextVersion))
	if err != nil {
		return err
	}
	if !ok {
		if err := c.client.CancelResolver(ctx, id); err != nil && !IsNotFound(err) {
			return err
		}
		ux.Warning("Resolution cancelled")
		return nil
	}

	err = ux.WithSpinner("Executing patch...", func(spin *ux.Spinner) error {
		return c.awaitPatch(ctx, id, spin)
	})
	if err != nil {
		return fmt.Errorf("patch failed, the proposal is kept for a retry: %w", err)
	}
	ux.Success(fmt.Sprintf("Source %s schema updated to %s and status reset to HEALTHY", id, p.NextVersion))
	return nil
}

// awaitPatch starts the patch without blocking and polls the session,
// showing the running phase, until the workflow ends. The session is
// closed only after the patch commits, so a 404 means success.
func (c *cli) awaitPatch(ctx context.Context, id string, spin *ux.Spinner) error {
	s, err := c.client.Execute(ctx, id, false)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()
	for {
		if s.Phase != "" {
			spin.UpdateMessage("Executing patch: " + s.Phase)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s, err = c.client.GetResolver(ctx, id)
		switch {
		case IsNotFound(err):
			return nil
		case err != nil:
			return err
		case s.State == resolver.StateExecuting, s.State == resolver.StateDone:
			// DONE is held until the commit lands and the session closes.
		case s.LastError != "":
			return errors.New(s.LastError)
		default:
			return fmt.Errorf("patch for %s stopped in state %s", id, s.State)
		}
	}
}

func (c *cli) pollInterval() time.Duration {
	if c.pollEvery > 0 {
		return c.pollEvery
	}
	return defaultPollInterval
}

func printPreview(p resolver.Preview) {
	ux.Title("Proposed resolution for " + p.SourceID)
	ux.Println(renderMarkdown(p.Analysis))
	ux.Println("")
	if p.HasCode {
		ux.Box("SQLX", p.Code)
	} else {
		ux.Warning("The AI response did not include a code block")
	}
	if p.SchemaDiff != "" {
		ux.Box("Schema diff", colorDiff(p.SchemaDiff))
	}
	ux.KeyValues("version", p.CurrentVersion+" -> "+p.NextVersion)
}
