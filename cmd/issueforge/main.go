/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the issueforge CLI: an SDLC agent that turns
// issues into pull requests, iterates on reviewer feedback, and reviews
// pull requests against CI results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chainguard.dev/issueforge/config"
	"chainguard.dev/issueforge/reconcilers/changereconciler"
	"chainguard.dev/issueforge/reconcilers/reviewreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

var (
	flagRepo      string
	flagRepoDir   string
	flagIssue     int
	flagPR        int
	flagCIResults string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := clog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx = clog.WithLogger(ctx, log)

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "issueforge",
		Short:         "SDLC agent: issue to PR, fix loop, and AI review",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagRepo, "repo", "", "Repository as owner/name or URL (required)")
	root.PersistentFlags().StringVar(&flagRepoDir, "repo-dir", "", "Existing local checkout to use (default: fresh temp clone)")

	root.AddCommand(issueCmd(), fixCmd(), reviewCmd())
	return root
}

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Generate changes for an issue and open or update its PR",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			r, err := changereconciler.New(ctx, cfg, flagRepo, flagRepoDir)
			if err != nil {
				return err
			}
			return r.ReconcileIssue(ctx, flagIssue)
		},
	}
	cmd.Flags().IntVar(&flagIssue, "issue", 0, "Issue number (required)")
	must(cmd.MarkFlagRequired("issue"))
	return cmd
}

func fixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Push a follow-up commit addressing review feedback on a PR",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			r, err := changereconciler.New(ctx, cfg, flagRepo, flagRepoDir)
			if err != nil {
				return err
			}
			return r.ReconcileFix(ctx, flagPR)
		},
	}
	cmd.Flags().IntVar(&flagPR, "pr", 0, "Pull request number (required)")
	must(cmd.MarkFlagRequired("pr"))
	return cmd
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review a PR against its issue and CI results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			r, err := reviewreconciler.New(ctx, cfg, flagRepo, flagRepoDir)
			if err != nil {
				return err
			}
			return r.ReconcilePull(ctx, flagPR, flagCIResults)
		},
	}
	cmd.Flags().IntVar(&flagPR, "pr", 0, "Pull request number (required)")
	cmd.Flags().StringVar(&flagCIResults, "ci-results", "", "Path to the CI results JSON file")
	must(cmd.MarkFlagRequired("pr"))
	return cmd
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	if flagRepo == "" {
		return nil, fmt.Errorf("--repo is required")
	}
	return config.Load(ctx)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
