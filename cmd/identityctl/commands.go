package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/go-identity/internal/auth"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/pkg/config"
	"github.com/hugh/go-identity/pkg/crypto"
	"github.com/hugh/go-identity/pkg/queue"
	"github.com/hugh/go-identity/pkg/util"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is what the commands need from the outside world.
type env struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *gorm.DB
}

// envLoader builds the env lazily so commands like gen-key run without a database.
type envLoader func() (*env, error)

func defaultEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &env{Config: cfg, Logger: logger, DB: db}, nil
}

func newRootCommand(load envLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Administer the identity service",
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCommand(load),
		newSeedAdminCommand(load),
		newSweepCommand(load),
		newGenKeyCommand(),
		newQueueStatsCommand(),
	)
	return root
}

func newMigrateCommand(load envLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed the role groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(e.DB); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			if err := database.SeedGroups(cmd.Context(), e.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database migrated")
			return nil
		},
	}
}

func newSeedAdminCommand(load envLoader) *cobra.Command {
	var username, email, companyID, password string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin user",
		Long: `Create an admin user. When --password is omitted a random one is generated
and printed once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := load()
			if err != nil {
				return err
			}

			generated := password == ""
			if generated {
				if password, err = crypto.GeneratePassword(20); err != nil {
					return fmt.Errorf("generating password: %w", err)
				}
			}

			users := directory.New(e.DB,
				directory.WithBcryptCost(e.Config.Auth.BcryptCost),
				directory.WithLogger(e.Logger),
			)
			jwtService := auth.NewJWTService(e.Config.JWT.Secret, e.Config.JWT.Expiry())
			svc := auth.NewService(users, credentials.NewGormStore(e.DB), jwtService,
				auth.WithMailer(mail.LogSender{Logger: e.Logger}),
				auth.WithLogger(e.Logger),
				auth.WithBcryptCost(e.Config.Auth.BcryptCost),
				auth.WithDefaultCompany(e.Config.Auth.DefaultCompanyID),
			)

			in := auth.RegisterInput{
				Username:  username,
				Password:  password,
				CompanyID: companyID,
				FullName:  "Administrator",
				Role:      models.RoleAdmin,
			}
			if email != "" {
				in.Email = &email
			}

			id, err := svc.Register(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created admin %s (%s)\n", username, id)
			if generated {
				fmt.Fprintf(out, "password: %s\n", password)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "Username of the admin")
	cmd.Flags().StringVar(&email, "email", "", "Email of the admin")
	cmd.Flags().StringVar(&companyID, "company", "", "Company ID; defaults to DEFAULT_COMPANY_ID")
	cmd.Flags().StringVar(&password, "password", "", "Password; generated when empty")
	return cmd
}

func newSweepCommand(load envLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-tokens",
		Short: "Delete expired stored tokens now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			now := time.Now()
			n, err := credentials.NewGormStore(e.DB).Sweep(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired tokens\n", n)

			if e.Config.Sweep.Cron != "" {
				next, err := util.NextCronTime(e.Config.Sweep.Cron, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "next scheduled sweep at %s\n", next.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newGenKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate an ENCRYPTION_KEY for sealing stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, recipient, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ENCRYPTION_KEY=%s\n", key)
			fmt.Fprintf(out, "# recipient: %s\n", recipient)
			return nil
		},
	}
}

func newQueueStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Show worker queue sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			inspector := queue.NewInspector(&cfg.Redis)
			defer inspector.Close()

			names, err := inspector.Queues()
			if err != nil {
				return fmt.Errorf("listing queues: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %8s %8s %8s %8s\n", "QUEUE", "PENDING", "ACTIVE", "RETRY", "FAILED")
			for _, name := range names {
				info, err := inspector.GetQueueInfo(name)
				if err != nil {
					return fmt.Errorf("inspecting %s: %w", name, err)
				}
				fmt.Fprintf(out, "%-10s %8d %8d %8d %8d\n", name, info.Pending, info.Active, info.Retry, info.Failed)
			}
			return nil
		},
	}
}
