package main

import (
	"fmt"

	auth "github.com/goliatone/go-session-auth"
	"github.com/spf13/cobra"
)

var (
	setupAdminPassword string
	resetUsername      string
	resetPassword      string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create tables, default roles and the built in admin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts, err := loadOptions()
		if err != nil {
			return err
		}

		password := setupAdminPassword
		if password == "" {
			password = opts.AdminPassword
		}
		if password == "" {
			return fmt.Errorf("admin password required, use --admin-password or DEFAULT_ADMIN_PASSWORD")
		}

		db, err := openDB(opts)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := auth.CreateSchema(ctx, db); err != nil {
			return err
		}

		admin, err := auth.Seed(ctx, auth.NewRepositoryManager(db, auth.DefaultLogger()), auth.NewBcryptHasher(), auth.SeedOptions{
			AdminPassword: password,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "database ready, admin account %q\n", admin.Username)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password for a local account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if resetUsername == "" || resetPassword == "" {
			return fmt.Errorf("--username and --password are required")
		}

		opts, err := loadOptions()
		if err != nil {
			return err
		}

		db, err := openDB(opts)
		if err != nil {
			return err
		}
		defer db.Close()

		hash, err := auth.NewBcryptHasher().HashPassword(resetPassword)
		if err != nil {
			return err
		}

		repos := auth.NewRepositoryManager(db, auth.DefaultLogger())
		if err := repos.Accounts().ResetPassword(ctx, resetUsername, hash); err != nil {
			return fmt.Errorf("reset password for %s: %w", resetUsername, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %q\n", resetUsername)
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupAdminPassword, "admin-password", "", "password for the built in admin account")

	resetPasswordCmd.Flags().StringVarP(&resetUsername, "username", "u", "", "account username")
	resetPasswordCmd.Flags().StringVarP(&resetPassword, "password", "p", "", "new password")
}
