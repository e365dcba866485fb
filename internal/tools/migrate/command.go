package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/config"
	"github.com/ramcharankhv-byte/taskhub/internal/database"
	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/tools/common"
	"github.com/ramcharankhv-byte/taskhub/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file to load before connecting")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive JSON output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "up", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				return []string{"schema is up to date"}, nil
			})
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "status", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				return tableStatus(db.WithContext(ctx)), nil
			})
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "List tables a migration would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "plan", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				var pending []string
				for name, model := range managedTables() {
					if !db.WithContext(ctx).Migrator().HasTable(model) {
						pending = append(pending, "create "+name)
					}
				}
				if len(pending) == 0 {
					pending = []string{"nothing to do"}
				}
				return pending, nil
			})
			return err
		},
	})

	return root
}

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

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func managedTables() map[string]interface{} {
	return map[string]interface{}{
		"users":            &domain.User{},
		"projects":         &domain.Project{},
		"project_members":  &domain.ProjectMember{},
		"tasks":            &domain.Task{},
		"task_attachments": &domain.TaskAttachment{},
		"sub_tasks":        &domain.SubTask{},
	}
}

func tableStatus(db *gorm.DB) []string {
	out := make([]string, 0, 6)
	for name, model := range managedTables() {
		state := "missing"
		if db.Migrator().HasTable(model) {
			state = "present"
		}
		out = append(out, name+": "+state)
	}
	return out
}
