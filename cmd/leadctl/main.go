// Command leadctl runs maintenance tasks against the database: migrations,
// ledger reconciliation, manual credit grants, admin promotion and bulk
// directory imports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/leadvault/backend/internal/config"
	"github.com/leadvault/backend/internal/database"
	"github.com/leadvault/backend/internal/ledger"
	"github.com/leadvault/backend/internal/logging"
	"github.com/leadvault/backend/internal/models"
	"github.com/leadvault/backend/internal/repository"
	"github.com/leadvault/backend/internal/services"
)

var Version = "dev"

// env holds what every subcommand needs once the root has connected.
type env struct {
	cfg    *config.Config
	log    *slog.Logger
	pool   *pgxpool.Pool
	users  *repository.UserRepo
	ledger *ledger.Service
}

func main() {
	v := config.NewViper()
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Maintenance commands for the LeadVault backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			e.pool = pool
			e.users = repository.NewUserRepo(pool)
			e.ledger = ledger.NewService(pool, e.users, repository.NewCreditRepo(pool), e.log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.pool != nil {
				e.pool.Close()
			}
		},
	}

	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	_ = v.BindPFlag("DATABASE_URL", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = v.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(migrateCmd(e))
	rootCmd.AddCommand(reconcileCmd(e))
	rootCmd.AddCommand(grantCmd(e))
	rootCmd.AddCommand(promoteCmd(e))
	rootCmd.AddCommand(seedCmd(e))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and River migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return database.Migrate(cmd.Context(), e.pool, e.log)
		},
	}
}

func reconcileCmd(e *env) *cobra.Command {
	var userFlag string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check balances against the transaction log",
		Long: `Compare every user's stored balance with initial credits plus the sum of
their transactions. Drift is reported, never repaired. Exits non-zero when
any user is inconsistent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if userFlag != "" {
				id, err := uuid.Parse(userFlag)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				rec, err := e.ledger.Reconcile(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s credits=%d initial=%d ledger=%d drift=%d\n",
					rec.UserID, rec.Credits, rec.InitialCredits, rec.LedgerSum, rec.Drift)
				if !rec.Consistent() {
					return errors.New("ledger drift detected")
				}
				return nil
			}

			drifted, err := e.ledger.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, rec := range drifted {
				fmt.Fprintf(out, "%s credits=%d initial=%d ledger=%d drift=%d\n",
					rec.UserID, rec.Credits, rec.InitialCredits, rec.LedgerSum, rec.Drift)
			}
			if len(drifted) > 0 {
				return fmt.Errorf("ledger drift detected for %d user(s)", len(drifted))
			}
			fmt.Fprintln(out, "all balances consistent")
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "reconcile a single user id")
	return cmd
}

func grantCmd(e *env) *cobra.Command {
	var (
		userFlag string
		amount   int
		note     string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add credits to a user as an admin adjustment",
		Example: `  leadctl grant --user 6f1c2a7e-8e3b-4c47-9a53-3f0e3d1b2c4d --amount 50 --note "support refund"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			balance, err := e.ledger.AddCredits(cmd.Context(), id, amount, models.ReasonAdminAdjustment,
				models.CreditMeta{Note: strings.TrimSpace(note)})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s, balance now %d\n", amount, id, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().IntVar(&amount, "amount", 0, "credits to add, must be positive (required)")
	cmd.Flags().StringVar(&note, "note", "", "reason recorded with the transaction")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func promoteCmd(e *env) *cobra.Command {
	var (
		email  string
		revoke bool
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Grant or revoke admin rights",
		Long:  "Role changes take effect on the user's next login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if err := e.users.SetAdmin(cmd.Context(), email, !revoke); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("no user with email %q", email)
				}
				return err
			}
			state := "granted"
			if revoke {
				state = "revoked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s for %s\n", state, email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove admin rights instead")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func seedCmd(e *env) *cobra.Command {
	var (
		file        string
		clearPeople bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import companies and people from a JSON file",
		Long: `Upsert companies and people by external id from a file shaped like
{"companies": [...], "people": [...]}. Records that cannot be imported are
skipped and listed as warnings. --clear-people deletes every person first,
along with their list memberships.`,
		Example: `  leadctl seed --file directory.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var data services.SeedData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			validator, err := services.NewValidator()
			if err != nil {
				return err
			}
			people := repository.NewPersonRepo(e.pool)
			dir := services.NewDirectory(people, repository.NewCompanyRepo(e.pool), validator, e.log)
			seeder := services.NewSeeder(dir, people, e.log)

			out := cmd.OutOrStdout()
			if clearPeople {
				n, err := seeder.ClearPeople(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted %d people\n", n)
			}
			report, err := seeder.Seed(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "companies: %d inserted, %d updated\npeople: %d inserted, %d updated\n",
				report.CompaniesInserted, report.CompaniesUpdated, report.PeopleInserted, report.PeopleUpdated)
			for _, w := range report.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the JSON file (required)")
	cmd.Flags().BoolVar(&clearPeople, "clear-people", false, "delete all people before importing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
