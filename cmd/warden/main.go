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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	serverURL  string
	output     string

	cfg         CLIConfig
	client      *WardenClient
	confirm     func(title, description string) (bool, error)
	interactive func() bool

	// pollEvery is how often a running patch is polled. Zero means
	// defaultPollInterval.
	pollEvery time.Duration
}

const defaultPollInterval = 250 * time.Millisecond

func newRootCmd() *cobra.Command {
	return (&cli{confirm: promptConfirm, interactive: ux.IsInteractive}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Drive the Data Warden schema-drift demo",
		Long: `warden talks to a running Data Warden service: list data sources,
simulate schema drift, review AI resolution proposals and apply them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "CLI config file (default ~/.warden/cli.yaml)")
	root.PersistentFlags().StringVar(&c.serverURL, "server", "", "warden service URL (env "+EnvServerURL+")")
	root.PersistentFlags().StringVar(&c.output, "personality", "", "output style: full, minimal or machine (env "+ux.EnvPersonality+")")

	root.AddCommand(
		c.sourcesCmd(),
		c.sourceCmd(),
		c.statsCmd(),
		c.healthCmd(),
		c.simulateCmd(),
		c.resolveCmd(),
		c.logsCmd(),
		c.resetCmd(),
	)

	return root
}

func (c *cli) init() error {
	path := c.configPath
	if path == "" {
		p, err := DefaultCLIConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, created, err := LoadCLIConfig(path)
	if err != nil {
		return err
	}
	c.cfg = cfg

	switch {
	case c.output != "":
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(c.output))
	case cfg.Output != "":
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.Output))
	default:
		ux.InitPersonality()
	}
	p := ux.GetPersonality()
	p.Confirm = cfg.Confirm
	ux.SetPersonality(p)

	if created {
		ux.Muted(fmt.Sprintf("First run detected, created the config at %s", path))
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(DefaultCLIConfig().TimeoutSeconds) * time.Second
	}
	c.client = NewWardenClient(resolveServerURL(c.serverURL, cfg), timeout)
	return nil
}

func (c *cli) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
