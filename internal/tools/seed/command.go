package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/config"
	"github.com/ramcharankhv-byte/taskhub/internal/database"
	"github.com/ramcharankhv-byte/taskhub/internal/tools/common"
	"github.com/ramcharankhv-byte/taskhub/internal/tools/ui"
)

type options struct {
	envFile    string
	ci         bool
	timeout    time.Duration
	adminEmail string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "seed",
		Short:         "Populate a local database with demo data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file to load before connecting")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive JSON output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")

	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create the demo workspace if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "apply", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				report, err := database.SeedSync(db.WithContext(ctx), opts.adminEmail)
				if err != nil {
					return nil, err
				}
				return reportDetails(report), nil
			})
			return err
		},
	}
	apply.Flags().StringVar(&opts.adminEmail, "admin-email", "", "email for the seeded admin account")

	dryRun := &cobra.Command{
		Use:   "dry-run",
		Short: "Show what apply would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "dry-run", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				// Run against a transaction that is always rolled back.
				var details []string
				txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
					report, err := database.SeedSync(tx, opts.adminEmail)
					if err != nil {
						return err
					}
					details = reportDetails(report)
					return errRollbackDryRun
				})
				if txErr != nil && txErr != errRollbackDryRun {
					return nil, txErr
				}
				return details, nil
			})
			return err
		},
	}

	var verifyEmail string
	verify := &cobra.Command{
		Use:   "verify-local-email",
		Short: "Mark a local account's email as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "verify-local-email", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.VerifyLocalEmail(db.WithContext(ctx), verifyEmail); err != nil {
					return nil, err
				}
				return []string{"verified " + strings.ToLower(strings.TrimSpace(verifyEmail))}, nil
			})
			return err
		},
	}
	verify.Flags().StringVar(&verifyEmail, "email", "", "email of the account to verify")

	root.AddCommand(apply, dryRun, verify)
	return root
}

var errRollbackDryRun = fmt.Errorf("dry run rollback")

func run(opts *options, title, action string, fn func(ctx context.Context) ([]string, error)) ([]string, error) {
	wrapped := func(ctx context.Context) ([]string, error) {
		if opts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.timeout)
			defer cancel()
		}
		return fn(ctx)
	}
	if opts.ci {
		details, err := wrapped(context.Background())
		common.PrintCIResult(err == nil, strings.TrimSpace(title+" "+action), details, err)
		return details, err
	}
	return ui.Run(strings.TrimSpace(title+" "+action), wrapped)
}

func openDB(envFile string) (*gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}

func reportDetails(r *database.SeedReport) []string {
	if r.Noop {
		return []string{"nothing to do"}
	}
	return []string{
		fmt.Sprintf("users created: %d", r.CreatedUsers),
		fmt.Sprintf("projects created: %d", r.CreatedProjects),
		fmt.Sprintf("tasks created: %d", r.CreatedTasks),
	}
}
