package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/droplinklabs/droplink/internal/audit"
	"github.com/droplinklabs/droplink/internal/clock"
	"github.com/droplinklabs/droplink/internal/config"
	"github.com/droplinklabs/droplink/internal/grace"
	"github.com/droplinklabs/droplink/internal/ledger"
	"github.com/droplinklabs/droplink/internal/migration"
	"github.com/droplinklabs/droplink/internal/notify"
	"github.com/droplinklabs/droplink/internal/observability"
	"github.com/droplinklabs/droplink/internal/payment"
	"github.com/droplinklabs/droplink/internal/plan"
	"github.com/droplinklabs/droplink/internal/reconcile"
	reconciledomain "github.com/droplinklabs/droplink/internal/reconcile/domain"
	"github.com/droplinklabs/droplink/internal/scheduler"
	"github.com/droplinklabs/droplink/internal/server"
	"github.com/droplinklabs/droplink/internal/subscription"
	"github.com/droplinklabs/droplink/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "droplink",
		Short:   "Droplink billing core",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newReconcileCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing API server with background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the background jobs (grace sweep, recovery)",
		RunE: func(cmd *cobra.Command, args []string) error {
			runScheduler()
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var reference string
	cmd := &cobra.Command{
		Use:   "reconcile <subscription-id>",
		Short: "Run one payment recovery search for a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(args[0], reference)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "provider payment reference to verify first")
	return cmd
}

func domainModules() fx.Option {
	return fx.Options(
		plan.Module,
		payment.Module,
		ledger.Module,
		audit.Module,
		subscription.Module,
		reconcile.Module,
		notify.Module,
		grace.Module,
	)
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		domainModules(),
		scheduler.Module,
		server.Module,
		fx.Invoke(server.Start),
		fx.Invoke(startScheduler),
	)
	app.Run()
}

func runScheduler() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		domainModules(),
		scheduler.Module,
		fx.Invoke(startScheduler),
	)
	app.Run()
}

func runReconcile(rawID, reference string) error {
	var engine reconciledomain.Engine
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		domainModules(),
		fx.Populate(&engine),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return fmt.Errorf("invalid subscription id: %w", err)
	}

	out, err := engine.Reconcile(ctx, reconciledomain.Request{
		SubscriptionID: id,
		Reference:      strings.TrimSpace(reference),
	})
	var exhausted *reconciledomain.ExhaustedError
	if errors.As(err, &exhausted) {
		fmt.Printf("exhausted: %s\n", exhausted.Diagnostic)
		for _, tierErr := range exhausted.TierErrors {
			fmt.Printf("  %s\n", tierErr)
		}
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("activated via %s (%s): subscription %s is %s\n",
		out.Tier, out.Source, out.Subscription.ID, out.Subscription.Status)
	return nil
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
