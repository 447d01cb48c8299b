package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cvgen/internal/version"
	"github.com/kailas-cloud/cvgen/pkg/client"
)

const (
	envURL    = "CVGEN_URL"
	envAPIKey = "CVGEN_API_KEY"
)

type globalFlags struct {
	url     string
	apiKey  string
	jsonOut bool
	timeout time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "cvgenctl",
		Short:         "Trigger and inspect cvgen probe sessions",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.url, "url", envOr(envURL, "http://localhost:8080"),
		"cvgen server URL (env "+envURL+")")
	root.PersistentFlags().StringVar(&g.apiKey, "api-key", os.Getenv(envAPIKey),
		"Bearer API key (env "+envAPIKey+")")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print raw JSON")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		newRunCmd(g),
		newSessionCmd(g),
		newLatestCmd(g),
		newHealthCmd(g),
		newDefsCmd(g),
	)
	return root
}

func (g *globalFlags) client(opts ...client.Option) (*client.Client, error) {
	if g.apiKey != "" {
		opts = append(opts, client.WithAPIKey(g.apiKey))
	}
	return client.New(g.url, opts...)
}

func (g *globalFlags) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		wait bool
		poll time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a probe session",
		Long: `Start a probe session. Probes execute in the background; with --wait the
command polls until every scheduled probe has a result and exits non-zero
if any of them failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client(client.WithPollInterval(poll))
			if err != nil {
				return err
			}
			ticket, err := c.TriggerRun(ctx)
			if err != nil {
				return fmt.Errorf("trigger run: %w", err)
			}
			if !wait {
				return g.print(cmd.OutOrStdout(), ticket, func(w io.Writer) {
					fmt.Fprintf(w, "session %s scheduled %d probes\n", ticket.SessionID, ticket.Scheduled)
				})
			}

			s, err := c.WaitForSession(ctx, ticket.SessionID)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("wait for session: %w", err)
			}
			if perr := g.printSession(cmd.OutOrStdout(), s); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("session %s did not complete: %w", ticket.SessionID, err)
			}
			if failed := s.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d probes failed", len(failed), s.Scheduled)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the session is complete")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "poll interval with --wait")
	return cmd
}

func newSessionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Show the results stored so far for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.Session(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			return g.printSession(cmd.OutOrStdout(), s)
		},
	}
}

func newLatestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.Latest(ctx)
			if errors.Is(err, client.ErrNotFound) {
				return errors.New("no session has stored results yet")
			}
			if err != nil {
				return fmt.Errorf("get latest session: %w", err)
			}
			return g.printSession(cmd.OutOrStdout(), s)
		},
	}
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the health signal; exits non-zero when unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client()
			if err != nil {
				return err
			}
			h, err := c.Health(ctx)
			if err != nil {
				return fmt.Errorf("get health: %w", err)
			}
			if err := g.print(cmd.OutOrStdout(), h, func(w io.Writer) {
				fmt.Fprintf(w, "%s (checked %s)\n", h.Status, h.LastCheck.Format(time.RFC3339))
			}); err != nil {
				return err
			}
			if !h.Healthy() {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}

func newDefsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defs",
		Short: "List active probe definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client()
			if err != nil {
				return err
			}
			defs, err := c.Definitions(ctx)
			if err != nil {
				return fmt.Errorf("list definitions: %w", err)
			}
			return g.print(cmd.OutOrStdout(), defs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tSEVERITY")
				for _, d := range defs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Category, d.Severity)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.AddCommand(newSetActiveCmd(g, "enable", true), newSetActiveCmd(g, "disable", false))
	return cmd
}

func newSetActiveCmd(g *globalFlags, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a definition for future runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			c, err := g.client()
			if err != nil {
				return err
			}
			d, err := c.SetActive(ctx, args[0], active)
			if err != nil {
				return fmt.Errorf("%s definition: %w", use, err)
			}
			return g.print(cmd.OutOrStdout(), d, func(w io.Writer) {
				fmt.Fprintf(w, "%s active=%t\n", d.Name, d.Active)
			})
		},
	}
}

func (g *globalFlags) print(w io.Writer, v any, text func(io.Writer)) error {
	if g.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}
	text(w)
	return nil
}

func (g *globalFlags) printSession(w io.Writer, s client.Session) error {
	return g.print(w, s, func(w io.Writer) {
		fmt.Fprintf(w, "session %s: %s (%d/%d)\n", s.ID, s.State, s.Received, s.Scheduled)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PROBE\tSTATUS\tDURATION\tCODE")
		for _, r := range s.Results {
			name := r.ProbeName
			if name == "" {
				name = r.ProbeID
			}
			code := "-"
			if r.ErrorCode != nil {
				code = *r.ErrorCode
			}
			fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", name, r.Status, r.DurationMs, code)
		}
		_ = tw.Flush()

		for _, r := range s.Failed() {
			if r.Meaning != nil {
				fmt.Fprintf(w, "\n%s: %s\n  fix: %s\n", r.ProbeName, *r.Meaning, deref(r.Fix))
			}
			if r.AIExplanation != nil {
				fmt.Fprintf(w, "  ai: %s\n  ai fix: %s\n", *r.AIExplanation, deref(r.AIFixSuggestion))
			}
		}
		for _, id := range s.Pending {
			fmt.Fprintf(w, "pending: %s\n", id)
		}
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
