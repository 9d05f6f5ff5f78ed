package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/redmonkez12/authflow/cmd/authctl/ui"
	"github.com/redmonkez12/authflow/internal/config"
	"github.com/redmonkez12/authflow/internal/database"
	"github.com/redmonkez12/authflow/internal/storage"
	"github.com/redmonkez12/authflow/internal/user"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func main() {
	rootCmd := &cobra.Command{
		Use:          "authctl",
		Short:        "Operate an authflow deployment",
		Long:         "Admin commands for the authflow API: schema migrations, key generation and account maintenance.",
		SilenceUsage: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().Bool("status", false, "Print migration status instead of applying")

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a 32 byte value for PASETO_KEY or JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE:  runKeygen,
	}

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect accounts",
	}
	usersCmd.AddCommand(&cobra.Command{
		Use:   "show <email>",
		Short: "Print an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowUser,
	})

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke <email>",
		Short: "Revoke every session of an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runRevokeSessions,
	}
	revokeCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	sessionsCmd.AddCommand(revokeCmd)

	rootCmd.AddCommand(migrateCmd, keygenCmd, usersCmd, sessionsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetBool("status")
	cfg := config.LoadUnvalidated()

	sqlDB, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if status {
		return database.MigrationStatus(sqlDB)
	}
	if err := database.Migrate(sqlDB); err != nil {
		return err
	}
	ui.PrintSuccess("Migrations applied.")
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	generate, err := nanoid.CustomASCII(keyAlphabet, 32)
	if err != nil {
		return fmt.Errorf("key generator: %w", err)
	}
	fmt.Println(generate())
	return nil
}

func runShowUser(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, closeFn, err := openStores()
	if err != nil {
		return err
	}
	defer closeFn()

	u, err := st.Users.GetByEmail(ctx, args[0])
	if err != nil {
		return lookupError(args[0], err)
	}
	ui.PrintUser(u)
	return nil
}

func runRevokeSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	yes, _ := cmd.Flags().GetBool("yes")

	st, closeFn, err := openStores()
	if err != nil {
		return err
	}
	defer closeFn()

	u, err := st.Users.GetByEmail(ctx, args[0])
	if err != nil {
		return lookupError(args[0], err)
	}

	if !yes {
		ok, err := ui.Confirm(
			fmt.Sprintf("Revoke every session of %s?", u.Email),
			"The user will have to log in again on every device.",
		)
		if err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := st.Sessions.DeleteByUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	ui.PrintSuccess("Sessions revoked for " + u.Email + ".")
	return nil
}

// openStores connects to whatever the environment configures. The memory
// backend lives inside the API process, so there is nothing to administer.
func openStores() (*storage.Stores, func(), error) {
	cfg := config.LoadUnvalidated()
	if cfg.Storage.Backend == config.BackendMemory {
		return nil, nil, errors.New("APP_STORE=memory keeps no state outside the API process")
	}

	sqlDB, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{sqlDB.Close}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var redisClient *redis.Client
	if storage.NeedsRedis(cfg.Storage) {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, redisClient.Close)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
	}

	st, err := storage.New(cfg.Storage, database.NewBunDB(sqlDB), redisClient)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return st, closeAll, nil
}

func lookupError(email string, err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("no account for %s", email)
	}
	return fmt.Errorf("lookup %s: %w", email, err)
}
