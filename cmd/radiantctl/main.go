// Command radiantctl runs Radiant maintenance tasks against the same
// database and stores as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/bootstrap"
	"github.com/radiant-ai/radiant/internal/config"
	"github.com/radiant-ai/radiant/internal/model"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	verbose bool
	out     io.Writer
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout}
	root := &cobra.Command{
		Use:           "radiantctl",
		Short:         "Operate a Radiant deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			c.out = cmd.OutOrStdout()
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.jobsCmd(),
		c.runJobCmd(),
		c.presetCmd(),
		c.erasureCmd(),
		c.tokenCmd(),
		c.genkeyCmd(),
	)
	return root
}

// withApp loads configuration, opens the stores and runs fn.
func (c *cli) withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app, err := bootstrap.Open(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()
	return fn(app)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the scheduled maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				for _, name := range app.Scheduler.Jobs() {
					_, _ = fmt.Fprintln(c.out, name)
				}
				return nil
			})
		},
	}
}

func (c *cli) runJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run one maintenance job now",
		Long: `Run one maintenance job immediately, outside its cron schedule.

Per-tenant jobs run for every registered tenant. Use "radiantctl jobs" to list
job names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				start := time.Now()
				if err := app.Scheduler.RunJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.out, "%s finished in %s\n", args[0], time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func (c *cli) presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Inspect or change a tenant's governance preset",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <tenant>",
		Short: "Print the effective governance configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				eff, err := app.Governance.EffectiveConfig(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(eff)
			})
		},
	})

	var by, reason string
	set := &cobra.Command{
		Use:   "set <tenant> <preset>",
		Short: "Apply a preset (paranoid, balanced, trusting)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset := model.Preset(args[1])
			if !preset.Valid() {
				return fmt.Errorf("unknown preset %q", args[1])
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				eff, err := app.Governance.SetPreset(cmd.Context(), args[0], preset, by, reason)
				if err != nil {
					return err
				}
				return c.printJSON(eff)
			})
		},
	}
	set.Flags().StringVar(&by, "by", "radiantctl", "actor recorded in the preset history")
	set.Flags().StringVar(&reason, "reason", "", "reason recorded in the preset history")
	cmd.AddCommand(set)
	return cmd
}

func (c *cli) erasureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erasure",
		Short: "Request or process GDPR erasures",
	}

	var user, by string
	var process bool
	request := &cobra.Command{
		Use:   "request <tenant>",
		Short: "Open an erasure request for a user, or for the whole tenant when --user is empty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.ErasureRequestInput{
				TenantID:    args[0],
				Scope:       model.ErasureScopeTenant,
				RequestedBy: by,
			}
			if user != "" {
				in.Scope = model.ErasureScopeUser
				in.UserID = &user
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				req, err := app.Tiering.RequestErasure(cmd.Context(), in)
				if err != nil {
					return err
				}
				if process {
					if err := app.Tiering.ProcessGdprErasure(cmd.Context(), req.ID); err != nil {
						return err
					}
					if req, err = app.Tiering.ErasureRequest(cmd.Context(), req.ID); err != nil {
						return err
					}
				}
				return c.printJSON(req)
			})
		},
	}
	request.Flags().StringVar(&user, "user", "", "user whose memory is erased")
	request.Flags().StringVar(&by, "by", "radiantctl", "actor recorded on the request")
	request.Flags().BoolVar(&process, "now", false, "process the request immediately")

	status := &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print an erasure request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id: %w", err)
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				req, err := app.Tiering.ErasureRequest(cmd.Context(), id)
				if err != nil {
					return err
				}
				return c.printJSON(req)
			})
		},
	}

	var limit int
	drain := &cobra.Command{
		Use:   "process",
		Short: "Process open erasure requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				completed, failed, err := app.Tiering.ProcessOpenErasures(cmd.Context(), limit)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.out, "completed=%d failed=%d\n", completed, failed)
				return nil
			})
		},
	}
	drain.Flags().IntVar(&limit, "limit", 50, "maximum requests to process")

	cmd.AddCommand(request, status, drain)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var tenant, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue-token <subject>",
		Short: "Sign a bearer token with the configured private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Without key files the manager signs with a throwaway key the
			// server would not accept.
			if cfg.JWTPrivateKeyPath == "" {
				return fmt.Errorf("RADIANT_JWT_PRIVATE_KEY is required to issue tokens")
			}
			mgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTIssuer, cfg.JWTExpiration)
			if err != nil {
				return err
			}
			token, exp, err := mgr.IssueToken(args[0], tenant, model.Role(role), ttl)
			if err != nil {
				return err
			}
			return c.printJSON(map[string]any{"token": token, "expires_at": exp})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant the token is scoped to")
	cmd.Flags().StringVar(&role, "role", string(model.RoleReviewer), "admin, reviewer or service")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default RADIANT_JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
