package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rollcall/client"
	"rollcall/internal/config"
	"rollcall/internal/metrics"
	"rollcall/internal/service"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"

	"github.com/spf13/cobra"
)

// newSyncCmd runs one replay directly against the local store, without a
// running agent.
func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Probe connectivity and replay the queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildAgent(ctx, cfg, metrics.Nop{})
			if err != nil {
				return err
			}
			defer a.Close()

			unsubscribe := a.orchestrator.Subscribe(func(ev v1.Event) {
				if ev.Kind == constraints.EventProgress {
					fmt.Fprintf(cmd.ErrOrStderr(), "synced %d/%d (id %d)\n", ev.Current, ev.Total, ev.ID)
				}
			})
			defer unsubscribe()

			res, err := a.orchestrator.SyncNow(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued submissions grouped by class session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			list, err := c.Pending(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func newRetryAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-all",
		Short: "Clear failure marks and sync now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.RetryAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow sync events from a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			c.OnReset = func() {
				fmt.Fprintln(cmd.ErrOrStderr(), "event history reset, run `rollcall pending` to reload")
			}
			c.Watch(ctx, func(ev v1.Event) {
				_ = enc.Encode(ev)
			})
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var actor service.Actor
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor.UserID, "user-id", "", "user id claim")
	cmd.Flags().StringVar(&actor.Name, "name", "", "display name claim")
	cmd.Flags().StringVar(&actor.Role, "role", "catechist", "role claim")
	cmd.MarkFlagRequired("name")
	return cmd
}

func (o *rootOptions) client() (*client.AgentClient, error) {
	addr := o.addr
	if addr == "" {
		cfg, err := o.load()
		if err != nil {
			return nil, err
		}
		addr = agentAddr(cfg)
	}
	return client.NewAgentClient(addr, o.token), nil
}

// agentAddr turns a listen address like ":8765" into a dialable URL.
func agentAddr(cfg *config.Config) string {
	port := cfg.Server.Port
	if strings.HasPrefix(port, ":") {
		return "http://localhost" + port
	}
	if strings.HasPrefix(port, "http") {
		return port
	}
	return "http://" + port
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
